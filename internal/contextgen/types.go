// Package contextgen renders the per-issue context bundle an agent reads
// inside its worktree: the parent issue, every sub-task, and any verify
// commands embedded in sub-task descriptions. It also owns backend
// auto-detection, which reads the same project layout the bundle is
// written into.
package contextgen

import (
	"time"

	"mobius/internal/localstore"
)

// SubTaskVerifyCommand is a sub-task's self-check command, extracted from a
// "### Verify Command" fenced-bash block in its description, if present.
type SubTaskVerifyCommand struct {
	SubtaskID string `json:"subtaskId"`
	Title     string `json:"title"`
	Command   string `json:"command"`
}

// IssueContext is the full per-issue bundle persisted to context.json and
// mirrored into each task's worktree so an agent never has to cross out of
// its isolated checkout to see its siblings or the parent's intent.
type IssueContext struct {
	GeneratedAt    time.Time                      `json:"generatedAt"`
	Parent         localstore.ParentIssueContext  `json:"parent"`
	SubTasks       []localstore.SubTaskContext    `json:"subTasks"`
	VerifyCommands []SubTaskVerifyCommand         `json:"verifyCommands,omitempty"`
}
