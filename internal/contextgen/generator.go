package contextgen

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"mobius/internal/backend"
	"mobius/internal/fsutil"
	"mobius/internal/layout"
	"mobius/internal/localstore"
)

var verifyCommandPattern = regexp.MustCompile(`(?is)###\s+Verify\s+Command\s*\n\s*` + "```" + `bash\s*\n(.*?)\n\s*` + "```")

// ExtractVerifyCommands scans each sub-task's description for a "### Verify
// Command" fenced-bash block and returns the extracted commands. Sub-tasks
// with no embedded block, or an empty extracted command, are silently
// skipped; this is never an error.
func ExtractVerifyCommands(tasks []localstore.SubTaskContext) []SubTaskVerifyCommand {
	var out []SubTaskVerifyCommand
	for _, task := range tasks {
		if task.Description == "" {
			continue
		}
		m := verifyCommandPattern.FindStringSubmatch(task.Description)
		if m == nil {
			continue
		}
		command := strings.TrimSpace(m[1])
		if command == "" {
			continue
		}
		id := task.Identifier
		if id == "" {
			id = task.ID
		}
		out = append(out, SubTaskVerifyCommand{SubtaskID: id, Title: task.Title, Command: command})
	}
	return out
}

// DetectBackend auto-selects a backend when the caller did not pass
// --backend: an existing local issue store wins, then Jira credentials,
// then Linear credentials, falling back to local.
func DetectBackend(gitRoot string) backend.Kind {
	if info, err := os.Stat(layout.IssuesDir(gitRoot)); err == nil && info.IsDir() {
		return backend.KindLocal
	}
	if os.Getenv("JIRA_HOST") != "" && os.Getenv("JIRA_EMAIL") != "" && os.Getenv("JIRA_API_TOKEN") != "" {
		return backend.KindJira
	}
	if os.Getenv("LINEAR_API_KEY") != "" || os.Getenv("LINEAR_API_TOKEN") != "" {
		return backend.KindLinear
	}
	return backend.KindLocal
}

// Generate builds and persists the full context bundle for a parent issue,
// extracting verify commands from its sub-tasks' descriptions.
func Generate(gitRoot, parentID string, parent localstore.ParentIssueContext, tasks []localstore.SubTaskContext) (IssueContext, error) {
	ctx := IssueContext{
		GeneratedAt:    time.Now(),
		Parent:         parent,
		SubTasks:       tasks,
		VerifyCommands: ExtractVerifyCommands(tasks),
	}
	if err := fsutil.WriteJSON(layout.ContextPath(gitRoot, parentID), ctx); err != nil {
		return IssueContext{}, fmt.Errorf("write context bundle: %w", err)
	}
	return ctx, nil
}

// Read loads a previously generated context bundle, if one exists.
func Read(gitRoot, parentID string) (IssueContext, bool) {
	var ctx IssueContext
	ok, _ := fsutil.ReadJSON(layout.ContextPath(gitRoot, parentID), &ctx)
	return ctx, ok
}

// IsFresh reports whether a parent's context.json was generated within
// maxAge, so the orchestrator can skip regenerating it every iteration.
func IsFresh(gitRoot, parentID string, maxAge time.Duration) bool {
	info, err := os.Stat(layout.ContextPath(gitRoot, parentID))
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < maxAge
}

// Mirror renders the context bundle as markdown and writes it into the
// task worktree's gitignored ".mobius-context" subdirectory, so an agent
// can read its siblings and the parent's intent without leaving its
// isolated checkout.
func Mirror(worktreePath string, ctx IssueContext) error {
	dir := layout.ContextMirrorDir(worktreePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create context mirror directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*\n"), 0o644); err != nil {
		return fmt.Errorf("write context mirror gitignore: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s: %s\n\n", ctx.Parent.Identifier, ctx.Parent.Title)
	if ctx.Parent.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", ctx.Parent.Description)
	}
	fmt.Fprintf(&b, "## Sub-tasks\n\n")
	for _, t := range ctx.SubTasks {
		fmt.Fprintf(&b, "- **%s** (%s): %s\n", t.Identifier, t.Status, t.Title)
	}
	if len(ctx.VerifyCommands) > 0 {
		fmt.Fprintf(&b, "\n## Verify commands\n\n")
		for _, v := range ctx.VerifyCommands {
			fmt.Fprintf(&b, "- %s: `%s`\n", v.SubtaskID, v.Command)
		}
	}

	path := filepath.Join(dir, "context.md")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write context mirror: %w", err)
	}
	return nil
}

