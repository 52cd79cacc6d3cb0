package graph

import (
	"strings"
	"sync"
)

// TaskGraph owns the SubTasks of a single ParentIssue plus the edges
// derived from their blocked_by sets.
type TaskGraph struct {
	ParentID         string
	ParentIdentifier string

	mu    sync.RWMutex
	tasks map[string]SubTask
	// edges mirrors tasks[id].BlockedBy for quick membership checks.
	edges map[string][]string
}

// normalizeStatus maps a tracker's free-form status string onto the
// canonical lifecycle values. Unknown strings become "pending" and are
// never fatal.
func normalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "done", "completed", "cancelled", "canceled":
		return StatusDone
	case "in progress", "in review", "started", "active":
		return StatusInProgress
	default:
		return StatusPending
	}
}

// Build constructs a TaskGraph from raw backend-fetched issues, deriving
// ready/blocked status for every non-terminal task in a second pass.
func Build(parentID, parentIdentifier string, issues []RawIssue) *TaskGraph {
	g := &TaskGraph{
		ParentID:         parentID,
		ParentIdentifier: parentIdentifier,
		tasks:            make(map[string]SubTask, len(issues)),
		edges:            make(map[string][]string, len(issues)),
	}

	for _, issue := range issues {
		status := normalizeStatus(issue.Status)
		task := SubTask{
			ID:            issue.ID,
			Identifier:    issue.Identifier,
			Title:         issue.Title,
			Status:        status,
			BlockedBy:     dedupe(issue.BlockedBy),
			Blocks:        dedupe(issue.Blocks),
			GitBranchName: issue.GitBranchName,
			Scoring:       issue.Scoring,
		}
		g.tasks[task.ID] = task
		g.edges[task.ID] = task.BlockedBy
	}

	for id, task := range g.tasks {
		if task.Status != StatusPending {
			continue
		}
		if g.allBlockersDone(task.BlockedBy) {
			task.Status = StatusReady
		} else {
			task.Status = StatusBlocked
		}
		g.tasks[id] = task
	}

	return g
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// allBlockersDone reports whether every in-graph blocker of a task is
// done. A blocker id absent from the graph is treated as external and
// therefore done.
func (g *TaskGraph) allBlockersDone(blockedBy []string) bool {
	for _, b := range blockedBy {
		dep, exists := g.tasks[b]
		if !exists {
			continue
		}
		if dep.Status != StatusDone {
			return false
		}
	}
	return true
}

// Clone returns a copy of the graph with its own task and edge maps; the
// tasks' BlockedBy/Blocks slices and Scoring pointers are shared with the
// original.
func (g *TaskGraph) Clone() *TaskGraph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := &TaskGraph{
		ParentID:         g.ParentID,
		ParentIdentifier: g.ParentIdentifier,
		tasks:            make(map[string]SubTask, len(g.tasks)),
		edges:            make(map[string][]string, len(g.edges)),
	}
	for id, t := range g.tasks {
		out.tasks[id] = t
	}
	for id, e := range g.edges {
		cp := make([]string, len(e))
		copy(cp, e)
		out.edges[id] = cp
	}
	return out
}

// UpdateStatus returns a new TaskGraph value with task `id` set to
// `status`. If the new status is Done, every task blocked on `id` whose
// current status is Blocked or Pending is recomputed: Ready if all of
// its in-graph blockers are now Done, otherwise left Blocked.
func (g *TaskGraph) UpdateStatus(id string, status Status) *TaskGraph {
	next := g.Clone()

	task, exists := next.tasks[id]
	if !exists {
		return next
	}
	task.Status = status
	next.tasks[id] = task

	if status != StatusDone {
		return next
	}

	for tid, t := range next.tasks {
		if t.Status != StatusBlocked && t.Status != StatusPending {
			continue
		}
		blocksOnID := false
		for _, b := range t.BlockedBy {
			if b == id {
				blocksOnID = true
				break
			}
		}
		if !blocksOnID {
			continue
		}
		if next.allBlockersDone(t.BlockedBy) {
			t.Status = StatusReady
		} else {
			t.Status = StatusBlocked
		}
		next.tasks[tid] = t
	}

	return next
}

// Task returns a copy of the task by id and whether it exists.
func (g *TaskGraph) Task(id string) (SubTask, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	return t, ok
}

// All returns a copy of every task in the graph, unsorted.
func (g *TaskGraph) All() []SubTask {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]SubTask, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, t)
	}
	return out
}

func (g *TaskGraph) filterSorted(pred func(SubTask) bool) []SubTask {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]SubTask, 0, len(g.tasks))
	for _, t := range g.tasks {
		if pred(t) {
			out = append(out, t)
		}
	}
	return sortedByIdentifier(out)
}

// GetReady returns ready tasks sorted by identifier.
func (g *TaskGraph) GetReady() []SubTask {
	return g.filterSorted(func(t SubTask) bool { return t.Status == StatusReady })
}

// GetBlocked returns blocked tasks sorted by identifier.
func (g *TaskGraph) GetBlocked() []SubTask {
	return g.filterSorted(func(t SubTask) bool { return t.Status == StatusBlocked })
}

// GetDone returns done tasks sorted by identifier.
func (g *TaskGraph) GetDone() []SubTask {
	return g.filterSorted(func(t SubTask) bool { return t.Status == StatusDone })
}

// GetInProgress returns in-progress tasks sorted by identifier.
func (g *TaskGraph) GetInProgress() []SubTask {
	return g.filterSorted(func(t SubTask) bool { return t.Status == StatusInProgress })
}

// GetPending returns pending tasks sorted by identifier.
func (g *TaskGraph) GetPending() []SubTask {
	return g.filterSorted(func(t SubTask) bool { return t.Status == StatusPending })
}

// GetVerificationTask returns the task whose title contains both
// "verification" and "gate" (case-insensitive), if any.
func (g *TaskGraph) GetVerificationTask() (SubTask, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, t := range g.tasks {
		lower := strings.ToLower(t.Title)
		if strings.Contains(lower, "verification") && strings.Contains(lower, "gate") {
			return t, true
		}
	}
	return SubTask{}, false
}

// Stats returns a point-in-time summary of the graph's task statuses.
func (g *TaskGraph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var s Stats
	s.Total = len(g.tasks)
	for _, t := range g.tasks {
		switch t.Status {
		case StatusDone:
			s.Done++
		case StatusReady:
			s.Ready++
		case StatusBlocked:
			s.Blocked++
		case StatusInProgress:
			s.InProgress++
		}
	}
	return s
}

// DetectSelfReferences reports sub-task ids that list themselves in
// blocked_by. A construction warning, never fatal.
func (g *TaskGraph) DetectSelfReferences() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for id, t := range g.tasks {
		for _, b := range t.BlockedBy {
			if b == id {
				out = append(out, id)
				break
			}
		}
	}
	return out
}
