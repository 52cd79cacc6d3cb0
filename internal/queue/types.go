// Package queue implements the pending-update outbox a task-issuing backend
// client drains: every mutation an agent or the orchestrator wants applied
// to an issue tracker is queued locally first and pushed (with retry and an
// audit trail) independently of the write that queued it.
package queue

import "time"

// UpdateKind discriminates the tagged-union payload a PendingUpdate carries.
type UpdateKind string

const (
	KindStatusChange      UpdateKind = "status_change"
	KindAddComment        UpdateKind = "add_comment"
	KindCreateSubtask     UpdateKind = "create_subtask"
	KindUpdateDescription UpdateKind = "update_description"
	KindAddLabel          UpdateKind = "add_label"
	KindRemoveLabel       UpdateKind = "remove_label"
)

// Data is the flat, all-variants-as-optional-fields payload of a pending
// update, following the house style set in internal/paneparser.Result for
// representing a tagged union.
type Data struct {
	Kind UpdateKind `json:"type" yaml:"type"`

	IssueID    string `json:"issueId,omitempty" yaml:"issueId,omitempty"`
	Identifier string `json:"identifier,omitempty" yaml:"identifier,omitempty"`

	// status_change
	OldStatus string `json:"oldStatus,omitempty" yaml:"oldStatus,omitempty"`
	NewStatus string `json:"newStatus,omitempty" yaml:"newStatus,omitempty"`

	// add_comment
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// create_subtask
	ParentID    string   `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	Title       string   `json:"title,omitempty" yaml:"title,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	BlockedBy   []string `json:"blockedBy,omitempty" yaml:"blockedBy,omitempty"`

	// add_label / remove_label
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// PendingUpdate is one queued mutation, synced at most once successfully.
type PendingUpdate struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	SyncedAt  *time.Time `json:"syncedAt,omitempty"`
	Error     *string    `json:"error,omitempty"`
	Data      Data       `json:"data"`
}

// Queue is the on-disk pending-updates file for one parent issue.
type Queue struct {
	Updates         []PendingUpdate `json:"updates"`
	LastSyncAttempt *time.Time      `json:"lastSyncAttempt,omitempty"`
	LastSyncSuccess *time.Time      `json:"lastSyncSuccess,omitempty"`
}

// PendingCount returns how many updates are still unsynced and unerrored.
func (q Queue) PendingCount() int {
	n := 0
	for _, u := range q.Updates {
		if u.SyncedAt == nil && u.Error == nil {
			n++
		}
	}
	return n
}

// SyncLogEntry is one audit-trail row recorded on every push attempt,
// successful or not.
type SyncLogEntry struct {
	Timestamp        time.Time  `json:"timestamp"`
	UpdateID         string     `json:"updateId"`
	Kind             UpdateKind `json:"type"`
	IssueIdentifier  string     `json:"issueIdentifier"`
	Success          bool       `json:"success"`
	Error            string     `json:"error,omitempty"`
	BackendResponse  string     `json:"backendResponse,omitempty"`
}

// SyncLog is the append-only audit trail for one parent issue's pushes.
type SyncLog struct {
	Entries []SyncLogEntry `json:"entries"`
}
