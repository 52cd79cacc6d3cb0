package tracker

import (
	"regexp"

	"mobius/internal/graph"
)

// localIDPattern matches local-only task identifiers (LOC-001, task-001)
// that never need backend verification because they have no backend
// counterpart to verify against.
var localIDPattern = regexp.MustCompile(`^(LOC|task)-\d+$`)

func isLocalIdentifier(identifier string) bool {
	return localIDPattern.MatchString(identifier)
}

// Tracker records task assignments and applies the retry/verification
// policy over their results.
type Tracker struct {
	Assignments           map[string]*Assignment
	MaxRetries            int
	VerificationTimeoutMS int64
}

// New creates a tracker. maxRetries and verificationTimeoutMS default to 2
// and 5000 respectively when zero.
func New(maxRetries int, verificationTimeoutMS int64) *Tracker {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if verificationTimeoutMS <= 0 {
		verificationTimeoutMS = 5000
	}
	return &Tracker{
		Assignments:           make(map[string]*Assignment),
		MaxRetries:            maxRetries,
		VerificationTimeoutMS: verificationTimeoutMS,
	}
}

// Assign records an attempt at task, incrementing its attempt count if it
// was already assigned.
func (t *Tracker) Assign(task graph.SubTask) {
	if existing, ok := t.Assignments[task.ID]; ok {
		existing.Attempts++
		return
	}
	t.Assignments[task.ID] = &Assignment{TaskID: task.ID, Identifier: task.Identifier, Attempts: 1}
}

// ProcessResults applies the tracker's retry/verification policy to a batch
// of raw execution results. Local-only tasks are auto-verified; backend
// tasks are optimistically accepted pending the caller's subsequent
// ApplyBackendVerification call. Failures are marked retryable while the
// task's attempt count is within MaxRetries.
func (t *Tracker) ProcessResults(results []ExecutionResult) []VerifiedResult {
	out := make([]VerifiedResult, 0, len(results))
	for _, r := range results {
		assignment := t.Assignments[r.TaskID]
		attempts := 1
		if assignment != nil {
			attempts = assignment.Attempts
			res := r
			assignment.LastResult = &res
		}

		vr := fromResult(r)
		if r.Success {
			vr.BackendVerified = true
			if isLocalIdentifier(r.Identifier) {
				vr.BackendStatus = "Done (local)"
			} else {
				vr.BackendStatus = "Done (agent-reported)"
			}
			vr.ShouldRetry = false
		} else {
			vr.BackendVerified = false
			vr.ShouldRetry = attempts <= t.MaxRetries
		}
		out = append(out, vr)
	}
	return out
}

// ApplyBackendVerification overwrites the optimistic "agent-reported"
// acceptance with a real backend status check: if the backend disagrees
// that the task is done, the result flips to failed with retry eligibility
// based on attempts vs maxRetries.
func ApplyBackendVerification(result *VerifiedResult, verified bool, backendStatus string, attempts, maxRetries int) {
	if verified {
		result.BackendVerified = true
		result.BackendStatus = backendStatus
		result.ShouldRetry = false
		return
	}
	result.BackendVerified = false
	result.BackendStatus = backendStatus
	result.Success = false
	result.ShouldRetry = attempts <= maxRetries
}

// GetRetryTasks returns the subset of allTasks whose VerifiedResult asked
// for a retry.
func GetRetryTasks(results []VerifiedResult, allTasks []graph.SubTask) []graph.SubTask {
	retryIDs := make(map[string]struct{})
	for _, r := range results {
		if r.ShouldRetry {
			retryIDs[r.TaskID] = struct{}{}
		}
	}
	var out []graph.SubTask
	for _, task := range allTasks {
		if _, ok := retryIDs[task.ID]; ok {
			out = append(out, task)
		}
	}
	return out
}

// GetPermanentlyFailedTasks returns results that failed with no retry
// budget remaining.
func GetPermanentlyFailedTasks(results []VerifiedResult) []VerifiedResult {
	var out []VerifiedResult
	for _, r := range results {
		if !r.Success && !r.ShouldRetry {
			out = append(out, r)
		}
	}
	return out
}

// AllSucceeded reports whether every result succeeded and was backend
// verified.
func AllSucceeded(results []VerifiedResult) bool {
	for _, r := range results {
		if !r.Success || !r.BackendVerified {
			return false
		}
	}
	return true
}

// HasPermanentFailures reports whether any result failed with no retries
// left.
func HasPermanentFailures(results []VerifiedResult) bool {
	for _, r := range results {
		if !r.Success && !r.ShouldRetry {
			return true
		}
	}
	return false
}

// Reset clears all tracked assignments.
func (t *Tracker) Reset() {
	t.Assignments = make(map[string]*Assignment)
}

// Stats summarizes the tracker's current assignment bookkeeping.
func (t *Tracker) Stats() Stats {
	s := Stats{TotalAssigned: len(t.Assignments)}
	for _, a := range t.Assignments {
		if a.Attempts > 1 {
			s.RetriedTasks++
		}
		if a.Attempts >= t.MaxRetries {
			s.MaxAttemptsReached++
		}
	}
	return s
}
