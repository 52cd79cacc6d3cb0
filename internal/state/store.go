package state

import (
	"fmt"
	"os"
	"time"

	"mobius/internal/fsutil"
	"mobius/internal/layout"
	"mobius/internal/telemetry"
)

// ErrLockTimeout is returned when WithSync cannot acquire the runtime-state
// lock within LockTimeout. It is fatal for the calling mutation.
type ErrLockTimeout struct {
	ParentID string
}

func (e ErrLockTimeout) Error() string {
	return fmt.Sprintf("timeout acquiring runtime state lock for %s after %s", e.ParentID, LockTimeout)
}

// Read returns the current RuntimeState for a parent issue. It is
// lock-free and tolerant: a missing, empty, or corrupt file yields
// ok=false rather than an error, since readers may race a concurrent
// writer and must accept either the old or new value.
func Read(gitRoot, parentID string) (RuntimeState, bool) {
	var s RuntimeState
	ok, _ := fsutil.ReadJSON(layout.RuntimePath(gitRoot, parentID), &s)
	return s, ok
}

func write(gitRoot string, s RuntimeState) error {
	if err := os.MkdirAll(layout.ExecutionDir(gitRoot, s.ParentID), 0o755); err != nil {
		return fmt.Errorf("create execution directory: %w", err)
	}
	return fsutil.WriteJSON(layout.RuntimePath(gitRoot, s.ParentID), s)
}

// WithSync acquires the per-parent file lock, reads the current state
// (possibly absent), applies mutate, persists the result atomically, and
// releases the lock. Every RuntimeState write in Mobius goes through here.
func WithSync(gitRoot, parentID string, mutate func(current RuntimeState, exists bool) RuntimeState) (RuntimeState, error) {
	if err := os.MkdirAll(layout.ExecutionDir(gitRoot, parentID), 0o755); err != nil {
		return RuntimeState{}, fmt.Errorf("create execution directory: %w", err)
	}

	lockPath := layout.RuntimeLockPath(gitRoot, parentID)
	deadline := time.Now().Add(LockTimeout)

	contended := false
	for {
		if tryAcquireLock(lockPath) {
			current, exists := Read(gitRoot, parentID)
			next := mutate(current, exists)
			writeErr := write(gitRoot, next)
			releaseLock(lockPath)
			if writeErr != nil {
				return RuntimeState{}, fmt.Errorf("persist runtime state: %w", writeErr)
			}
			return next, nil
		}

		if !contended {
			contended = true
			telemetry.TrackLockContention(parentID)
		}
		if time.Now().After(deadline) {
			return RuntimeState{}, ErrLockTimeout{ParentID: parentID}
		}
		time.Sleep(lockRetryInterval)
	}
}

// Initialize creates a fresh RuntimeState for a new execution session,
// overwriting any prior state for this parent.
func Initialize(gitRoot, parentID, parentTitle string, loopPID, totalTasks int) (RuntimeState, error) {
	now := time.Now()
	return WithSync(gitRoot, parentID, func(RuntimeState, bool) RuntimeState {
		return RuntimeState{
			ParentID:    parentID,
			ParentTitle: parentTitle,
			StartedAt:   now,
			UpdatedAt:   now,
			LoopPID:     loopPID,
			TotalTasks:  totalTasks,
		}
	})
}

func seedOrCurrent(current RuntimeState, exists bool, parentID string) RuntimeState {
	if exists {
		return current.clone()
	}
	now := time.Now()
	return RuntimeState{ParentID: parentID, StartedAt: now, UpdatedAt: now}
}

// AddActiveTask upserts an active task by id (replacing any prior entry
// for the same id, so a restart after a crash never duplicates it).
func AddActiveTask(gitRoot, parentID string, task ActiveTask) (RuntimeState, error) {
	return WithSync(gitRoot, parentID, func(current RuntimeState, exists bool) RuntimeState {
		s := seedOrCurrent(current, exists, parentID)
		filtered := s.ActiveTasks[:0:0]
		for _, t := range s.ActiveTasks {
			if t.ID != task.ID {
				filtered = append(filtered, t)
			}
		}
		s.ActiveTasks = append(filtered, task)
		s.UpdatedAt = time.Now()
		return s
	})
}

// UpdateTaskPane sets the pane id for an already-active task, covering the
// lag between a task's started_at and the pane id becoming known after
// spawn.
func UpdateTaskPane(gitRoot, parentID, taskID, paneID string) (RuntimeState, error) {
	return WithSync(gitRoot, parentID, func(current RuntimeState, exists bool) RuntimeState {
		s := seedOrCurrent(current, exists, parentID)
		for i := range s.ActiveTasks {
			if s.ActiveTasks[i].ID == taskID {
				s.ActiveTasks[i].Pane = paneID
			}
		}
		s.UpdatedAt = time.Now()
		return s
	})
}

// CompleteTask moves a task from active to completed, recording its
// duration and token usage.
func CompleteTask(gitRoot, parentID, taskID string, durationMS, inputTok, outputTok int64) (RuntimeState, error) {
	return WithSync(gitRoot, parentID, func(current RuntimeState, exists bool) RuntimeState {
		s := seedOrCurrent(current, exists, parentID)
		s.ActiveTasks = removeActive(s.ActiveTasks, taskID)
		s.CompletedTasks = append(s.CompletedTasks, CompletedTask{
			ID: taskID, CompletedAt: time.Now(), DurationMS: durationMS,
			InputTok: inputTok, OutputTok: outputTok,
		})
		s.TotalInputTokens += inputTok
		s.TotalOutputTok += outputTok
		s.UpdatedAt = time.Now()
		return s
	})
}

// FailTask moves a task from active to failed, recording the error.
func FailTask(gitRoot, parentID, taskID, errMsg string, durationMS int64) (RuntimeState, error) {
	return WithSync(gitRoot, parentID, func(current RuntimeState, exists bool) RuntimeState {
		s := seedOrCurrent(current, exists, parentID)
		s.ActiveTasks = removeActive(s.ActiveTasks, taskID)
		s.FailedTasks = append(s.FailedTasks, FailedTask{
			ID: taskID, FailedAt: time.Now(), DurationMS: durationMS, Error: errMsg,
		})
		s.UpdatedAt = time.Now()
		return s
	})
}

// RemoveActiveTask removes a task from the active set without recording
// it as completed or failed — used when a task is requeued for retry.
func RemoveActiveTask(gitRoot, parentID, taskID string) (RuntimeState, error) {
	return WithSync(gitRoot, parentID, func(current RuntimeState, exists bool) RuntimeState {
		s := seedOrCurrent(current, exists, parentID)
		s.ActiveTasks = removeActive(s.ActiveTasks, taskID)
		s.UpdatedAt = time.Now()
		return s
	})
}

// ClearAllActive empties the active-task set, used on interrupt and on
// loop exit so a stale pid/pane never lingers across runs.
func ClearAllActive(gitRoot, parentID string) (RuntimeState, error) {
	return WithSync(gitRoot, parentID, func(current RuntimeState, exists bool) RuntimeState {
		s := seedOrCurrent(current, exists, parentID)
		s.ActiveTasks = nil
		s.UpdatedAt = time.Now()
		return s
	})
}

// UpdateBackendStatus records the last observed tracker status for a
// sub-task identifier.
func UpdateBackendStatus(gitRoot, parentID, identifier, status string) (RuntimeState, error) {
	return WithSync(gitRoot, parentID, func(current RuntimeState, exists bool) RuntimeState {
		s := seedOrCurrent(current, exists, parentID)
		if s.BackendStatuses == nil {
			s.BackendStatuses = make(map[string]BackendStatus)
		}
		s.BackendStatuses[identifier] = BackendStatus{Identifier: identifier, Status: status, SyncedAt: time.Now()}
		s.UpdatedAt = time.Now()
		return s
	})
}

// Delete removes the runtime state file for a parent issue (the "--fresh"
// CLI path), returning whether a file was actually present.
func Delete(gitRoot, parentID string) bool {
	return os.Remove(layout.RuntimePath(gitRoot, parentID)) == nil
}

func removeActive(tasks []ActiveTask, taskID string) []ActiveTask {
	filtered := tasks[:0:0]
	for _, t := range tasks {
		if t.ID != taskID {
			filtered = append(filtered, t)
		}
	}
	return filtered
}
