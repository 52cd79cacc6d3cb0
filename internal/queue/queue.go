package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mobius/internal/fsutil"
	"mobius/internal/layout"
)

// Pusher applies one queued update against a real issue tracker. Local
// backends and no-op in tests simply return "", nil.
type Pusher interface {
	Push(ctx context.Context, d Data) (backendResponse string, err error)
}

// Read loads the pending-updates queue for a parent issue, tolerating a
// missing or corrupt file by returning the empty queue.
func Read(gitRoot, parentID string) Queue {
	var q Queue
	if ok, _ := fsutil.ReadJSON(layout.PendingUpdatesPath(gitRoot, parentID), &q); !ok {
		return Queue{}
	}
	return q
}

func write(gitRoot, parentID string, q Queue) error {
	return fsutil.WriteJSON(layout.PendingUpdatesPath(gitRoot, parentID), q)
}

// Enqueue appends a new pending update unless an equivalent, still-pending
// (unsynced, unerrored) update already exists. Once an update is synced or
// has errored, a new equivalent one is allowed through again.
func Enqueue(gitRoot, parentID string, d Data) error {
	q := Read(gitRoot, parentID)

	for _, existing := range q.Updates {
		if existing.SyncedAt == nil && existing.Error == nil && isDuplicate(existing.Data, d) {
			return nil
		}
	}

	q.Updates = append(q.Updates, PendingUpdate{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Data:      d,
	})
	return write(gitRoot, parentID, q)
}

// isDuplicate compares two updates under per-kind equality: updates of
// different kinds are never duplicates, and updates of the same kind are
// equal only on the fields that identify "the same change", not every
// field (e.g. identifier is carried but not compared). create_subtask
// equality ignores BlockedBy: two creates that differ only in their
// blockers count as duplicates.
func isDuplicate(existing, incoming Data) bool {
	if existing.Kind != incoming.Kind {
		return false
	}
	switch existing.Kind {
	case KindStatusChange:
		return existing.IssueID == incoming.IssueID &&
			existing.OldStatus == incoming.OldStatus &&
			existing.NewStatus == incoming.NewStatus
	case KindAddComment:
		return existing.IssueID == incoming.IssueID && existing.Body == incoming.Body
	case KindCreateSubtask:
		return existing.ParentID == incoming.ParentID &&
			existing.Title == incoming.Title &&
			existing.Description == incoming.Description
	case KindUpdateDescription:
		return existing.IssueID == incoming.IssueID && existing.Description == incoming.Description
	case KindAddLabel, KindRemoveLabel:
		return existing.IssueID == incoming.IssueID && existing.Label == incoming.Label
	default:
		return false
	}
}

// PendingCount reports how many updates in a parent's queue are still
// awaiting a successful push.
func PendingCount(gitRoot, parentID string) int {
	return Read(gitRoot, parentID).PendingCount()
}

// ReadSyncLog loads a parent issue's sync log, empty when missing.
func ReadSyncLog(gitRoot, parentID string) SyncLog {
	var log SyncLog
	_, _ = fsutil.ReadJSON(layout.SyncLogPath(gitRoot, parentID), &log)
	return log
}

// PushResult is the outcome of pushing one queued update.
type PushResult struct {
	UpdateID        string
	Kind            UpdateKind
	IssueIdentifier string
	Success         bool
	Error           string
}

// PushAll attempts to push every unsynced, unerrored update in a parent's
// queue through pusher, marking each as synced or errored and appending a
// SyncLogEntry for every attempt regardless of outcome, as a single
// atomic pass over the queue file.
func PushAll(ctx context.Context, gitRoot, parentID string, pusher Pusher) ([]PushResult, error) {
	q := Read(gitRoot, parentID)
	now := time.Now()
	q.LastSyncAttempt = &now

	var results []PushResult
	var log SyncLog
	if ok, _ := fsutil.ReadJSON(layout.SyncLogPath(gitRoot, parentID), &log); !ok {
		log = SyncLog{}
	}

	anySucceeded := false
	for i := range q.Updates {
		u := &q.Updates[i]
		if u.SyncedAt != nil || u.Error != nil {
			continue
		}

		resp, pushErr := pusher.Push(ctx, u.Data)
		attempt := time.Now()
		res := PushResult{UpdateID: u.ID, Kind: u.Data.Kind, IssueIdentifier: u.Data.Identifier}

		entry := SyncLogEntry{Timestamp: attempt, UpdateID: u.ID, Kind: u.Data.Kind, IssueIdentifier: u.Data.Identifier}
		if pushErr != nil {
			errMsg := pushErr.Error()
			u.Error = &errMsg
			res.Success = false
			res.Error = errMsg
			entry.Success = false
			entry.Error = errMsg
		} else {
			u.SyncedAt = &attempt
			res.Success = true
			anySucceeded = true
			entry.Success = true
			entry.BackendResponse = resp
		}
		log.Entries = append(log.Entries, entry)
		results = append(results, res)
	}

	if anySucceeded {
		done := time.Now()
		q.LastSyncSuccess = &done
	}

	if err := write(gitRoot, parentID, q); err != nil {
		return results, err
	}
	if err := fsutil.WriteJSON(layout.SyncLogPath(gitRoot, parentID), log); err != nil {
		return results, err
	}
	return results, nil
}
