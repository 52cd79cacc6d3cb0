// Package state is the Runtime State Store: a crash-safe, file-locked
// read-modify-write view of one parent issue's live execution — which
// tasks are active, completed, or failed, and what each active task's pane
// and pid are. Unlike internal/localstore (the source-of-truth sub-task
// files), RuntimeState is a derived, mutate-in-place snapshot consumed by
// dashboards and the orchestrator's own retry logic.
package state

import "time"

// ActiveTask is one row of RuntimeState.ActiveTasks: a sub-task currently
// running inside a pane.
type ActiveTask struct {
	ID        string    `json:"id"`
	PID       int       `json:"pid"`
	Pane      string    `json:"pane"`
	StartedAt time.Time `json:"startedAt"`
	Worktree  string    `json:"worktree,omitempty"`
	Model     string    `json:"model,omitempty"`
	InputTok  int64     `json:"inputTokens,omitempty"`
	OutputTok int64     `json:"outputTokens,omitempty"`
}

// CompletedTask is one row of RuntimeState.CompletedTasks.
type CompletedTask struct {
	ID          string    `json:"id"`
	CompletedAt time.Time `json:"completedAt"`
	DurationMS  int64     `json:"durationMs"`
	InputTok    int64     `json:"inputTokens,omitempty"`
	OutputTok   int64     `json:"outputTokens,omitempty"`
}

// FailedTask is one row of RuntimeState.FailedTasks.
type FailedTask struct {
	ID         string    `json:"id"`
	FailedAt   time.Time `json:"failedAt"`
	DurationMS int64     `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
}

// BackendStatus records the last tracker status Mobius observed for a
// sub-task, and when it was synced.
type BackendStatus struct {
	Identifier string    `json:"identifier"`
	Status     string    `json:"status"`
	SyncedAt   time.Time `json:"syncedAt"`
}

// RuntimeState is the live execution snapshot for one parent issue. All
// mutation flows through WithSync; readers use Read directly and must
// tolerate a missing file.
type RuntimeState struct {
	ParentID         string                   `json:"parentId"`
	ParentTitle      string                   `json:"parentTitle"`
	ActiveTasks      []ActiveTask             `json:"activeTasks"`
	CompletedTasks   []CompletedTask          `json:"completedTasks"`
	FailedTasks      []FailedTask             `json:"failedTasks"`
	StartedAt        time.Time                `json:"startedAt"`
	UpdatedAt        time.Time                `json:"updatedAt"`
	LoopPID          int                      `json:"loopPid,omitempty"`
	TotalTasks       int                      `json:"totalTasks,omitempty"`
	BackendStatuses  map[string]BackendStatus `json:"backendStatuses,omitempty"`
	TotalInputTokens int64                    `json:"totalInputTokens,omitempty"`
	TotalOutputTok   int64                    `json:"totalOutputTokens,omitempty"`
}

// clone returns a deep copy so mutators never alias slices/maps across
// the caller's pre-mutation value and the persisted post-mutation value.
func (s RuntimeState) clone() RuntimeState {
	out := s
	out.ActiveTasks = append([]ActiveTask(nil), s.ActiveTasks...)
	out.CompletedTasks = append([]CompletedTask(nil), s.CompletedTasks...)
	out.FailedTasks = append([]FailedTask(nil), s.FailedTasks...)
	if s.BackendStatuses != nil {
		out.BackendStatuses = make(map[string]BackendStatus, len(s.BackendStatuses))
		for k, v := range s.BackendStatuses {
			out.BackendStatuses[k] = v
		}
	}
	return out
}
