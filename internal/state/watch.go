package state

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"mobius/internal/layout"
)

// debounce is the coalescing window for rapid runtime.json writes,
// bypassed by the fast path below.
const debounce = 150 * time.Millisecond

// WatchHandle is a live subscription on a parent issue's runtime.json.
// Stop terminates the background goroutine; it is safe to call more than
// once.
type WatchHandle struct {
	stop chan struct{}
	done chan struct{}
}

// Stop ends the watch and waits for its goroutine to exit.
func (h *WatchHandle) Stop() {
	select {
	case <-h.stop:
	default:
		close(h.stop)
	}
	<-h.done
}

// Watch subscribes to changes in a parent issue's runtime.json, invoking
// callback once immediately with the current state and again whenever the
// file's content meaningfully changes. A 150ms debounce coalesces bursts
// of writes, except that a newly appeared active task id fires
// immediately, a fast path for UI responsiveness. updated_at-only changes
// never re-fire the callback.
func Watch(gitRoot, parentID string, callback func(RuntimeState, bool)) (*WatchHandle, error) {
	execDir := layout.ExecutionDir(gitRoot, parentID)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(execDir, 0o755); err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(execDir); err != nil {
		watcher.Close()
		return nil, err
	}

	h := &WatchHandle{stop: make(chan struct{}), done: make(chan struct{})}
	runtimeFile := filepath.Base(layout.RuntimePath(gitRoot, parentID))

	last, lastExists := Read(gitRoot, parentID)
	callback(last, lastExists)

	go func() {
		defer close(h.done)
		defer watcher.Close()

		var timer *time.Timer
		var timerC <-chan time.Time

		fire := func() {
			cur, exists := Read(gitRoot, parentID)
			if hasNewActiveTasks(last, lastExists, cur, exists) {
				last, lastExists = cur, exists
				callback(cur, exists)
				return
			}
			if contentChanged(last, lastExists, cur, exists) {
				last, lastExists = cur, exists
				callback(cur, exists)
			}
		}

		for {
			select {
			case <-h.stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != runtimeFile {
					continue
				}
				cur, exists := Read(gitRoot, parentID)
				if hasNewActiveTasks(last, lastExists, cur, exists) {
					if timer != nil {
						timer.Stop()
						timerC = nil
					}
					last, lastExists = cur, exists
					callback(cur, exists)
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				timerC = timer.C
			case <-timerC:
				timerC = nil
				fire()
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return h, nil
}

func hasNewActiveTasks(old RuntimeState, oldExists bool, cur RuntimeState, curExists bool) bool {
	if !curExists {
		return false
	}
	if !oldExists {
		return len(cur.ActiveTasks) > 0
	}
	oldIDs := make(map[string]struct{}, len(old.ActiveTasks))
	for _, t := range old.ActiveTasks {
		oldIDs[t.ID] = struct{}{}
	}
	for _, t := range cur.ActiveTasks {
		if _, seen := oldIDs[t.ID]; !seen {
			return true
		}
	}
	return false
}

// contentChanged compares the active tasks (id and start time, in order),
// the completed and failed counts, loop_pid, and each backend status; every
// other field, UpdatedAt included, is ignored, so an updated_at-only write
// does not re-notify subscribers.
func contentChanged(old RuntimeState, oldExists bool, cur RuntimeState, curExists bool) bool {
	if oldExists != curExists {
		return true
	}
	if !oldExists {
		return false
	}
	if !activeTasksEqual(old.ActiveTasks, cur.ActiveTasks) {
		return true
	}
	if len(old.CompletedTasks) != len(cur.CompletedTasks) {
		return true
	}
	if len(old.FailedTasks) != len(cur.FailedTasks) {
		return true
	}
	if old.LoopPID != cur.LoopPID {
		return true
	}
	return !backendStatusesEqual(old.BackendStatuses, cur.BackendStatuses)
}

func activeTasksEqual(a, b []ActiveTask) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || !a[i].StartedAt.Equal(b[i].StartedAt) {
			return false
		}
	}
	return true
}

func backendStatusesEqual(a, b map[string]BackendStatus) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || bv.Status != v.Status {
			return false
		}
	}
	return true
}
