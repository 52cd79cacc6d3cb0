// Package graph implements the dependency graph of sub-tasks for a single
// parent issue: derivation of ready/blocked status and cascade of
// completion through the DAG.
package graph

import "sort"

// Status is the lifecycle state of a SubTask.
type Status string

const (
	StatusPending    Status = "pending"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
	StatusFailed     Status = "failed"
)

// Scoring captures optional model-selection hints attached to a SubTask.
type Scoring struct {
	Complexity       int    `json:"complexity"`
	Risk             int    `json:"risk"`
	RecommendedModel string `json:"recommended_model,omitempty"`
	Rationale        string `json:"rationale,omitempty"`
}

// SubTask is a unit of agent work belonging to exactly one TaskGraph.
type SubTask struct {
	ID             string   `json:"id"`
	Identifier     string   `json:"identifier"`
	Title          string   `json:"title"`
	Status         Status   `json:"status"`
	BlockedBy      []string `json:"blocked_by,omitempty"`
	Blocks         []string `json:"blocks,omitempty"`
	GitBranchName  string   `json:"git_branch_name,omitempty"`
	Scoring        *Scoring `json:"scoring,omitempty"`
}

// ParentIssue is the tracker issue whose sub-tasks a run executes.
type ParentIssue struct {
	ID            string `json:"id"`
	Identifier    string `json:"identifier"`
	Title         string `json:"title"`
	GitBranchName string `json:"git_branch_name,omitempty"`
}

// Stats is a point-in-time summary of a TaskGraph's task statuses.
type Stats struct {
	Total      int `json:"total"`
	Done       int `json:"done"`
	Ready      int `json:"ready"`
	Blocked    int `json:"blocked"`
	InProgress int `json:"in_progress"`
}

// RawIssue is the shape of a sub-task record as fetched from a backend
// (tracker status is a free-form string normalized during build).
type RawIssue struct {
	ID            string
	Identifier    string
	Title         string
	Status        string
	BlockedBy     []string
	Blocks        []string
	GitBranchName string
	Scoring       *Scoring
}

func sortedByIdentifier(tasks []SubTask) []SubTask {
	out := make([]SubTask, len(tasks))
	copy(out, tasks)
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}
