package localstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextLocalID_Sequential(t *testing.T) {
	root := t.TempDir()

	id1, err := NextLocalID(root)
	require.NoError(t, err)
	assert.Equal(t, "LOC-001", id1)

	id2, err := NextLocalID(root)
	require.NoError(t, err)
	assert.Equal(t, "LOC-002", id2)
}

func TestNextLocalID_RecoversFromMissingCounter(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, WriteParentSpec(root, "LOC-005", ParentIssueContext{ID: "LOC-005"}))
	require.NoError(t, WriteParentSpec(root, "LOC-002", ParentIssueContext{ID: "LOC-002"}))

	id, err := NextLocalID(root)
	require.NoError(t, err)
	assert.Equal(t, "LOC-006", id)
}

func TestSubTaskSpec_RoundTrip(t *testing.T) {
	root := t.TempDir()
	task := SubTaskContext{
		ID:         "id-1",
		Identifier: "LOC-001",
		Title:      "Do the thing",
		Status:     "pending",
		BlockedBy:  []IssueRef{{ID: "id-0", Identifier: "LOC-000"}},
	}
	require.NoError(t, WriteSubTaskSpec(root, "LOC-parent", task))

	tasks, err := ReadSubTasks(root, "LOC-parent")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.Title, tasks[0].Title)
	assert.Equal(t, []string{"id-0"}, tasks[0].BlockedByIDs())
}

func TestReadSubTasks_MissingDirectory(t *testing.T) {
	root := t.TempDir()
	tasks, err := ReadSubTasks(root, "nope")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestUpdateSubTaskStatus(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, WriteSubTaskSpec(root, "P", SubTaskContext{ID: "1", Identifier: "LOC-001", Status: "pending"}))

	require.NoError(t, UpdateSubTaskStatus(root, "P", "LOC-001", "done"))

	tasks, err := ReadSubTasks(root, "P")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "done", tasks[0].Status)
}

func TestUpdateSubTaskStatus_MissingIsNoOp(t *testing.T) {
	root := t.TempDir()
	assert.NoError(t, UpdateSubTaskStatus(root, "P", "LOC-999", "done"))
}

func TestIterationLog_AppendOnly(t *testing.T) {
	root := t.TempDir()
	e1 := NewIterationEntry("LOC-001", 1, time.Now(), IterationSuccess, "", "abc123", []string{"a.go"})
	e2 := NewIterationEntry("LOC-001", 2, time.Now(), IterationFailed, "boom", "", nil)

	require.NoError(t, AppendIterationLog(root, "P", e1))
	require.NoError(t, AppendIterationLog(root, "P", e2))

	entries := ReadIterationLog(root, "P")
	require.Len(t, entries, 2)
	assert.Equal(t, IterationSuccess, entries[0].Status)
	assert.Equal(t, IterationFailed, entries[1].Status)
}
