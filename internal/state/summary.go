package state

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

// ProgressSummary is a small derived view summarizing progress as
// "N/M done, K active, J failed" without re-deriving the graph.
type ProgressSummary struct {
	Total     int
	Completed int
	Failed    int
	Active    int
}

// Summarize reports progress over a RuntimeState. A missing state yields
// the zero summary rather than an error.
func Summarize(s RuntimeState, exists bool) ProgressSummary {
	if !exists {
		return ProgressSummary{}
	}
	return ProgressSummary{
		Total:     s.TotalTasks,
		Completed: len(s.CompletedTasks),
		Failed:    len(s.FailedTasks),
		Active:    len(s.ActiveTasks),
	}
}

// String renders the summary as "N/M done, K active, J failed".
func (p ProgressSummary) String() string {
	return fmt.Sprintf("%d/%d done, %d active, %d failed", p.Completed, p.Total, p.Active, p.Failed)
}

// ModalSummary pairs a ProgressSummary with the run's elapsed time. The
// tmux status pane is rendered by paneterm.UpdateStatusPane, which does not
// use it.
type ModalSummary struct {
	Progress ProgressSummary
	Elapsed  time.Duration
}

// ModalSummaryFor builds a ModalSummary from a RuntimeState and a caller
// supplied elapsed duration (the loop's own clock, not derived from
// StartedAt, since the caller may be mid-iteration when it renders).
func ModalSummaryFor(s RuntimeState, exists bool, elapsed time.Duration) ModalSummary {
	return ModalSummary{Progress: Summarize(s, exists), Elapsed: elapsed}
}

// IsProcessRunning reports whether a pid is alive by probing it with
// signal 0, the standard Unix liveness check (os.FindProcess never fails
// on Unix, so the real test is Signal).
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// FilterRunningTasks splits a RuntimeState's active tasks into those whose
// recorded pid is still alive and those that are not, without mutating
// the state: readers stay tolerant and never reach into the locked RMW
// path just to report staleness.
func FilterRunningTasks(tasks []ActiveTask) (running, stale []ActiveTask) {
	for _, t := range tasks {
		if IsProcessRunning(t.PID) {
			running = append(running, t)
		} else {
			stale = append(stale, t)
		}
	}
	return running, stale
}
