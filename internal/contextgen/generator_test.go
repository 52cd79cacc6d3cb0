package contextgen

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mobius/internal/backend"
	"mobius/internal/layout"
	"mobius/internal/localstore"
)

func TestExtractVerifyCommands(t *testing.T) {
	tasks := []localstore.SubTaskContext{
		{ID: "1", Identifier: "LOC-001", Title: "Add parser", Description: "Do the thing.\n\n### Verify Command\n```bash\ngo test ./...\n```\n"},
		{ID: "2", Identifier: "LOC-002", Title: "No block", Description: "Nothing to see here."},
		{ID: "3", Identifier: "LOC-003", Title: "Empty block", Description: "### Verify Command\n```bash\n\n```"},
		{ID: "4", Identifier: "", Title: "Falls back to id", Description: "### verify command\n```bash\nmake check\n```"},
	}

	got := ExtractVerifyCommands(tasks)
	require.Len(t, got, 2)
	assert.Equal(t, "LOC-001", got[0].SubtaskID)
	assert.Equal(t, "go test ./...", got[0].Command)
	assert.Equal(t, "4", got[1].SubtaskID)
	assert.Equal(t, "make check", got[1].Command)
}

func TestDetectBackend(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("JIRA_HOST", "")
	t.Setenv("JIRA_EMAIL", "")
	t.Setenv("JIRA_API_TOKEN", "")
	t.Setenv("LINEAR_API_KEY", "")
	t.Setenv("LINEAR_API_TOKEN", "")

	assert.Equal(t, backend.KindLocal, DetectBackend(dir))

	t.Setenv("LINEAR_API_KEY", "lin_xxx")
	assert.Equal(t, backend.KindLinear, DetectBackend(dir))

	t.Setenv("JIRA_HOST", "example.atlassian.net")
	t.Setenv("JIRA_EMAIL", "a@b.com")
	t.Setenv("JIRA_API_TOKEN", "tok")
	assert.Equal(t, backend.KindJira, DetectBackend(dir))

	require.NoError(t, os.MkdirAll(layout.IssuesDir(dir), 0o755))
	assert.Equal(t, backend.KindLocal, DetectBackend(dir))
}

func TestGenerateAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	parent := localstore.ParentIssueContext{ID: "p1", Identifier: "MOB-1", Title: "Parent"}
	tasks := []localstore.SubTaskContext{{ID: "t1", Identifier: "LOC-001", Title: "Task"}}

	ctx, err := Generate(dir, "p1", parent, tasks)
	require.NoError(t, err)
	assert.Equal(t, "MOB-1", ctx.Parent.Identifier)

	got, ok := Read(dir, "p1")
	require.True(t, ok)
	assert.Equal(t, ctx.Parent, got.Parent)
	assert.True(t, IsFresh(dir, "p1", time.Hour))
}

func TestMirrorWritesMarkdown(t *testing.T) {
	dir := t.TempDir()
	ctx := IssueContext{
		Parent:         localstore.ParentIssueContext{Identifier: "MOB-1", Title: "Parent", Description: "desc"},
		SubTasks:       []localstore.SubTaskContext{{Identifier: "LOC-001", Title: "Sub", Status: "ready"}},
		VerifyCommands: []SubTaskVerifyCommand{{SubtaskID: "LOC-001", Command: "go test ./..."}},
	}
	require.NoError(t, Mirror(dir, ctx))

	data, err := os.ReadFile(filepath.Join(layout.ContextMirrorDir(dir), "context.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "MOB-1")
	assert.Contains(t, string(data), "go test ./...")
}
