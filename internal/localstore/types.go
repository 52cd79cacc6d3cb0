// Package localstore is the Local State Store: the project-local
// filesystem records that are the source of truth for a parent issue's
// sub-tasks, independent of whatever tracker backend fetched them. It
// owns the LOC-N local-identifier counter and the append-only iteration
// log; internal/state owns the separately file-locked RuntimeState.
package localstore

import "time"

// IssueRef is a reference to a related sub-task, tolerant of backends that
// only ever supply a bare id string for blocked_by/blocks.
type IssueRef struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
}

// ParentIssueContext is the locally cached record of the parent issue.
type ParentIssueContext struct {
	ID            string   `json:"id"`
	Identifier    string   `json:"identifier"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	GitBranchName string   `json:"gitBranchName,omitempty"`
	Status        string   `json:"status"`
	Labels        []string `json:"labels,omitempty"`
	URL           string   `json:"url,omitempty"`
}

// SubTaskContext is the locally cached record of one sub-task, read by
// graph.Build and mutated in place as the loop advances a task's status.
type SubTaskContext struct {
	ID            string     `json:"id"`
	Identifier    string     `json:"identifier,omitempty"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Status        string     `json:"status"`
	GitBranchName string     `json:"gitBranchName,omitempty"`
	BlockedBy     []IssueRef `json:"blockedBy,omitempty"`
	Blocks        []IssueRef `json:"blocks,omitempty"`
}

// BlockedByIDs returns the bare ids of a sub-task's blockers, the shape
// internal/graph.RawIssue expects.
func (s SubTaskContext) BlockedByIDs() []string {
	return refIDs(s.BlockedBy)
}

// BlocksIDs returns the bare ids a sub-task blocks.
func (s SubTaskContext) BlocksIDs() []string {
	return refIDs(s.Blocks)
}

func refIDs(refs []IssueRef) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.ID
	}
	return out
}

// IterationStatus is the outcome of one sub-task execution attempt.
type IterationStatus string

const (
	IterationSuccess IterationStatus = "success"
	IterationPartial IterationStatus = "partial"
	IterationFailed  IterationStatus = "failed"
)

// IterationLogEntry records one attempt at executing a sub-task.
type IterationLogEntry struct {
	Identifier    string          `json:"identifier"`
	Attempt       int             `json:"attempt"`
	StartedAt     time.Time       `json:"startedAt"`
	CompletedAt   time.Time       `json:"completedAt"`
	Status        IterationStatus `json:"status"`
	Error         string          `json:"error,omitempty"`
	ModifiedFiles []string        `json:"modifiedFiles,omitempty"`
	CommitHash    string          `json:"commitHash,omitempty"`
}

// TaskOutcome is one row of a CompletionSummary's per-task breakdown.
type TaskOutcome struct {
	Identifier string `json:"identifier"`
	Status     string `json:"status"`
	DurationMS int64  `json:"durationMs"`
}

// CompletionSummary is written once a loop run reaches a terminal state.
type CompletionSummary struct {
	ParentIdentifier string        `json:"parentIdentifier"`
	Success          bool          `json:"success"`
	StartedAt        time.Time     `json:"startedAt"`
	FinishedAt       time.Time     `json:"finishedAt"`
	Tasks            []TaskOutcome `json:"tasks"`
}

// Counter backs LOC-N local identifier generation.
type Counter struct {
	Next int `json:"next"`
}
