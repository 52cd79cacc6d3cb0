// Package layout centralizes the on-disk shape of a project's .mobius
// directory so every subsystem (local store, runtime state, pending queue,
// context generator) agrees on where things live without importing each
// other.
package layout

import "path/filepath"

// BaseDirName is the project-local directory all Mobius state lives under.
const BaseDirName = ".mobius"

// Base returns "<gitRoot>/.mobius".
func Base(gitRoot string) string {
	return filepath.Join(gitRoot, BaseDirName)
}

// Gitignore returns the path of the .gitignore Mobius writes under its base
// directory. It holds the single pattern "state/"; no directory of that
// name exists in this layout, so it does not exclude the runtime files
// under issues/<parentID>/execution/.
func Gitignore(gitRoot string) string {
	return filepath.Join(Base(gitRoot), ".gitignore")
}

// CurrentSessionPointer returns the path of the plain-text file naming the
// currently active parent_id, if any.
func CurrentSessionPointer(gitRoot string) string {
	return filepath.Join(Base(gitRoot), "current-session")
}

// IssuesDir returns "<base>/issues".
func IssuesDir(gitRoot string) string {
	return filepath.Join(Base(gitRoot), "issues")
}

// CounterPath returns the path of the LOC-N id counter.
func CounterPath(gitRoot string) string {
	return filepath.Join(IssuesDir(gitRoot), "counter.json")
}

// IssueDir returns "<issues>/<parentID>".
func IssueDir(gitRoot, parentID string) string {
	return filepath.Join(IssuesDir(gitRoot), parentID)
}

// ParentPath returns the ParentIssueContext file for a parent issue.
func ParentPath(gitRoot, parentID string) string {
	return filepath.Join(IssueDir(gitRoot, parentID), "parent.json")
}

// ContextPath returns the full IssueContext bundle file for a parent issue.
func ContextPath(gitRoot, parentID string) string {
	return filepath.Join(IssueDir(gitRoot, parentID), "context.json")
}

// TasksDir returns the directory holding one SubTaskContext file per
// sub-task of a parent issue.
func TasksDir(gitRoot, parentID string) string {
	return filepath.Join(IssueDir(gitRoot, parentID), "tasks")
}

// TaskPath returns the SubTaskContext file for one sub-task.
func TaskPath(gitRoot, parentID, identifier string) string {
	return filepath.Join(TasksDir(gitRoot, parentID), identifier+".json")
}

// PendingUpdatesPath returns the PendingUpdatesQueue file for a parent issue.
func PendingUpdatesPath(gitRoot, parentID string) string {
	return filepath.Join(IssueDir(gitRoot, parentID), "pending-updates.json")
}

// SyncLogPath returns the SyncLog audit file for a parent issue.
func SyncLogPath(gitRoot, parentID string) string {
	return filepath.Join(IssueDir(gitRoot, parentID), "sync-log.json")
}

// SummaryPath returns the CompletionSummary file written on finish.
func SummaryPath(gitRoot, parentID string) string {
	return filepath.Join(IssueDir(gitRoot, parentID), "summary.json")
}

// ExecutionDir returns "<issue>/execution".
func ExecutionDir(gitRoot, parentID string) string {
	return filepath.Join(IssueDir(gitRoot, parentID), "execution")
}

// SessionPath returns the SessionInfo file for a parent issue.
func SessionPath(gitRoot, parentID string) string {
	return filepath.Join(ExecutionDir(gitRoot, parentID), "session.json")
}

// RuntimePath returns the RuntimeState file for a parent issue.
func RuntimePath(gitRoot, parentID string) string {
	return filepath.Join(ExecutionDir(gitRoot, parentID), "runtime.json")
}

// RuntimeLockPath returns the advisory lock file guarding RuntimePath.
func RuntimeLockPath(gitRoot, parentID string) string {
	return RuntimePath(gitRoot, parentID) + ".lock"
}

// IterationsPath returns the IterationLog file for a parent issue.
func IterationsPath(gitRoot, parentID string) string {
	return filepath.Join(ExecutionDir(gitRoot, parentID), "iterations.json")
}

// ContextMirrorDir returns the gitignored subdirectory inside a task's
// worktree that the orchestrator mirrors the rendered context bundle into,
// so an agent can read it without crossing out of its isolated checkout.
func ContextMirrorDir(worktreePath string) string {
	return filepath.Join(worktreePath, ".mobius-context")
}
