package localstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"mobius/internal/fsutil"
	"mobius/internal/layout"
)

// NextLocalID atomically increments the LOC-N counter and returns the new
// id in "LOC-NNN" (zero-padded to 3 digits) form. If counter.json is
// missing or corrupt, it recovers by scanning existing "LOC-NNN" issue
// directories and resuming from max+1.
func NextLocalID(gitRoot string) (string, error) {
	issuesDir := layout.IssuesDir(gitRoot)
	if err := os.MkdirAll(issuesDir, 0o755); err != nil {
		return "", fmt.Errorf("create issues directory: %w", err)
	}

	counterPath := layout.CounterPath(gitRoot)
	var counter Counter
	ok, _ := fsutil.ReadJSON(counterPath, &counter)
	next := counter.Next
	if !ok || next <= 0 {
		next = scanForNextID(issuesDir)
	}

	if err := fsutil.WriteJSON(counterPath, Counter{Next: next + 1}); err != nil {
		return "", fmt.Errorf("persist counter: %w", err)
	}
	return fmt.Sprintf("LOC-%03d", next), nil
}

func scanForNextID(issuesDir string) int {
	entries, err := os.ReadDir(issuesDir)
	if err != nil {
		return 1
	}
	max := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		numStr, ok := strings.CutPrefix(e.Name(), "LOC-")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(numStr); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

// WriteParentSpec persists a parent issue's locally cached record.
func WriteParentSpec(gitRoot, parentID string, spec ParentIssueContext) error {
	return fsutil.WriteJSON(layout.ParentPath(gitRoot, parentID), spec)
}

// ReadParentSpec reads a parent issue's locally cached record.
func ReadParentSpec(gitRoot, parentID string) (ParentIssueContext, bool) {
	var spec ParentIssueContext
	ok, _ := fsutil.ReadJSON(layout.ParentPath(gitRoot, parentID), &spec)
	return spec, ok
}

// WriteSubTaskSpec persists one sub-task's locally cached record.
func WriteSubTaskSpec(gitRoot, parentID string, task SubTaskContext) error {
	return fsutil.WriteJSON(layout.TaskPath(gitRoot, parentID, taskFileKey(task)), task)
}

func taskFileKey(task SubTaskContext) string {
	if task.Identifier != "" {
		return task.Identifier
	}
	return task.ID
}

// UpdateSubTaskStatus rewrites a single sub-task file's status field,
// leaving every other field untouched. A missing file is a no-op: the
// orchestrator only calls this for tasks it already knows about.
func UpdateSubTaskStatus(gitRoot, parentID, identifier, status string) error {
	path := layout.TaskPath(gitRoot, parentID, identifier)
	var task SubTaskContext
	ok, _ := fsutil.ReadJSON(path, &task)
	if !ok {
		return nil
	}
	task.Status = status
	return fsutil.WriteJSON(path, task)
}

// ReadSubTasks lists every sub-task file under a parent issue's tasks
// directory, sorted by identifier for deterministic iteration.
func ReadSubTasks(gitRoot, parentID string) ([]SubTaskContext, error) {
	dir := layout.TasksDir(gitRoot, parentID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tasks directory %s: %w", dir, err)
	}

	tasks := make([]SubTaskContext, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var task SubTaskContext
		ok, _ := fsutil.ReadJSON(filepath.Join(dir, e.Name()), &task)
		if ok {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Identifier < tasks[j].Identifier })
	return tasks, nil
}

// AppendIterationLog appends one entry to a parent issue's append-only
// iteration log.
func AppendIterationLog(gitRoot, parentID string, entry IterationLogEntry) error {
	path := layout.IterationsPath(gitRoot, parentID)
	var entries []IterationLogEntry
	_, _ = fsutil.ReadJSON(path, &entries)
	entries = append(entries, entry)
	return fsutil.WriteJSON(path, entries)
}

// ReadIterationLog returns every recorded iteration-log entry for a parent
// issue, oldest first.
func ReadIterationLog(gitRoot, parentID string) []IterationLogEntry {
	var entries []IterationLogEntry
	_, _ = fsutil.ReadJSON(layout.IterationsPath(gitRoot, parentID), &entries)
	return entries
}

// WriteSummary persists the CompletionSummary written when a loop run
// reaches a terminal state.
func WriteSummary(gitRoot, parentID string, summary CompletionSummary) error {
	return fsutil.WriteJSON(layout.SummaryPath(gitRoot, parentID), summary)
}

// NewIterationEntry is a small constructor keeping call sites from
// threading time.Now() through by hand.
func NewIterationEntry(identifier string, attempt int, started time.Time, status IterationStatus, errMsg, commitHash string, modified []string) IterationLogEntry {
	return IterationLogEntry{
		Identifier:    identifier,
		Attempt:       attempt,
		StartedAt:     started,
		CompletedAt:   time.Now(),
		Status:        status,
		Error:         errMsg,
		ModifiedFiles: modified,
		CommitHash:    commitHash,
	}
}
