// Package orchestrator composes the task graph, worktree manager, tmux
// adapter, executor, tracker, runtime-state store, and pending-update queue
// into the main execution loop: pick ready tasks, drive agents through
// panes, verify and retry, cascade completion through the DAG until the
// parent issue is done or permanently failed.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"mobius/internal/backend"
	"mobius/internal/config"
	"mobius/internal/contextgen"
	"mobius/internal/executor"
	"mobius/internal/graph"
	"mobius/internal/layout"
	"mobius/internal/localstore"
	"mobius/internal/paneterm"
	"mobius/internal/queue"
	"mobius/internal/state"
	"mobius/internal/telemetry"
	"mobius/internal/tracker"
	"mobius/internal/worktree"
)

// Terminal loop conditions, branched on by the CLI with errors.Is.
var (
	ErrInterrupted      = errors.New("orchestrator: interrupted")
	ErrNoSubtasks       = errors.New("orchestrator: no sub-task files found")
	ErrMaxIterations    = errors.New("orchestrator: iteration cap reached")
	ErrPermanentFailure = errors.New("orchestrator: permanent task failure")
	ErrAllBlocked       = errors.New("orchestrator: no ready tasks remain")
)

var (
	remoteIdentifierPattern = regexp.MustCompile(`^[A-Z]+-\d+$`)
	localIdentifierPattern  = regexp.MustCompile(`^(LOC-\d+|task-\d+)$`)
)

// ValidateIdentifier checks the CLI task identifier's shape for a backend
// before any state is touched.
func ValidateIdentifier(kind backend.Kind, identifier string) error {
	switch kind {
	case backend.KindLocal:
		if !localIdentifierPattern.MatchString(identifier) {
			return fmt.Errorf("identifier %q does not match the local pattern LOC-<n> or task-<n>", identifier)
		}
	default:
		if !remoteIdentifierPattern.MatchString(identifier) {
			return fmt.Errorf("identifier %q does not match the tracker pattern ABC-123", identifier)
		}
	}
	return nil
}

// Options wires one Run. Mux and Adapter are overridable for tests; nil
// selects the tmux and configured-runtime defaults.
type Options struct {
	Settings     config.Settings
	GitRoot      string
	Identifier   string
	BackendKind  backend.Kind
	Backend      backend.Client
	Fresh        bool
	NoStatusPane bool
	Notify       func(event, message string)
	Mux          executor.Mux
	Adapter      executor.RuntimeAdapter
	Log          *slog.Logger
}

// Report is what a finished (or failed) Run hands back to the CLI.
type Report struct {
	Success       bool
	ParentID      string
	ParentTitle   string
	Elapsed       time.Duration
	Stats         graph.Stats
	WorktreePath  string
	SessionName   string
	CleanedUp     bool
	FailureDetail string
}

type run struct {
	Options
	log      *slog.Logger
	session  *paneterm.Session
	worktree *worktree.Handle
	parent   backend.ParentInfo
	tracker  *tracker.Tracker
	exec     *executor.Executor
	pusher   queue.Pusher

	retryQueue    []graph.SubTask
	vgFastRetries int
	startedAt     time.Time
}

// Run executes the full loop for one parent issue.
func Run(ctx context.Context, opts Options) (Report, error) {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	r := &run{Options: opts, log: opts.Log, startedAt: time.Now()}

	if err := ValidateIdentifier(opts.BackendKind, opts.Identifier); err != nil {
		return Report{}, err
	}

	report, err := r.execute(ctx)
	report.Elapsed = time.Since(r.startedAt)
	return report, err
}

func (r *run) execute(ctx context.Context) (Report, error) {
	var report Report

	// Parent fetch, with local fallback when the backend is unreachable.
	parent, err := r.Backend.FetchParent(ctx, r.Identifier)
	if err != nil {
		if spec, ok := localstore.ReadParentSpec(r.GitRoot, r.Identifier); ok {
			r.log.Warn("backend fetch failed, using local parent spec", "error", err)
			parent = backend.ParentInfo{ID: spec.ID, Identifier: spec.Identifier, Title: spec.Title, GitBranchName: spec.GitBranchName}
		} else {
			return report, fmt.Errorf("fetch parent %s: %w", r.Identifier, err)
		}
	}
	r.parent = parent
	report.ParentID = parent.ID
	report.ParentTitle = parent.Title

	if r.Fresh {
		if state.Delete(r.GitRoot, parent.ID) {
			r.log.Info("deleted prior runtime state", "parent_id", parent.ID)
		}
	}

	branch := parent.GitBranchName
	if branch == "" {
		branch = "feat/" + strings.ToLower(parent.Identifier)
	}

	wtm := worktree.NewManager(r.GitRoot)
	if r.Settings.Remote != "" {
		wtm.Remote = r.Settings.Remote
	}
	handle, err := wtm.Create(ctx, parent.Identifier, branch, r.Settings.BaseBranch)
	if err != nil {
		return report, fmt.Errorf("create worktree: %w", err)
	}
	r.worktree = handle
	report.WorktreePath = handle.Path

	sessionName := paneterm.SessionName(parent.Identifier)
	report.SessionName = sessionName
	session, err := paneterm.CreateSession(ctx, sessionName)
	if err != nil {
		return report, fmt.Errorf("create tmux session: %w", err)
	}
	r.session = session
	if !r.NoStatusPane {
		if _, err := paneterm.CreateStatusPane(ctx, session); err != nil {
			r.log.Warn("status pane creation failed", "error", err)
		}
	}

	if _, err := state.StartSession(r.GitRoot, parent.ID, string(r.BackendKind), handle.Path); err != nil {
		r.log.Warn("session record write failed", "error", err)
	}
	writeStateGitignore(r.GitRoot)

	g, err := r.loadGraph(ctx)
	if err != nil {
		return report, err
	}
	if g.Stats().Total == 0 {
		return report, ErrNoSubtasks
	}

	if err := r.refreshContext(ctx); err != nil {
		return report, err
	}

	if _, err := state.Initialize(r.GitRoot, parent.ID, parent.Title, os.Getpid(), g.Stats().Total); err != nil {
		return report, err
	}
	for _, t := range g.GetDone() {
		_, _ = state.UpdateBackendStatus(r.GitRoot, parent.ID, t.Identifier, "Done")
	}

	r.tracker = tracker.New(r.Settings.MaxRetries, r.Settings.VerificationTimeoutMS)
	r.exec = executor.New(executor.Config{
		MaxParallelAgents: r.Settings.MaxParallelAgents,
		AgentTimeout:      r.Settings.AgentTimeout,
		PollInterval:      r.Settings.PollInterval,
		CaptureLines:      r.Settings.CaptureLines,
		Model:             r.Settings.Model,
		DisallowedTools:   r.Settings.DisallowedTools,
	}, session, r.Mux, r.resolveAdapter(), r.log)
	r.pusher = backend.QueuePusher{Client: r.Backend}

	r.notify("on_start", fmt.Sprintf("Mobius loop started for %s: %s", parent.Identifier, parent.Title))

	loopErr := r.loop(ctx, g)

	// Exit path: clear active tasks regardless of outcome, then settle the
	// session record and decide whether to clean up or preserve.
	_, _ = state.ClearAllActive(r.GitRoot, parent.ID)

	finalGraph, reloadErr := r.loadGraph(ctx)
	if reloadErr == nil {
		report.Stats = finalGraph.Stats()
	}

	success := loopErr == nil
	report.Success = success
	if loopErr != nil {
		report.FailureDetail = loopErr.Error()
	}

	if errors.Is(loopErr, ErrInterrupted) {
		_ = state.EndSession(r.GitRoot, parent.ID, state.SessionPaused)
	} else if success {
		_ = state.EndSession(r.GitRoot, parent.ID, state.SessionCompleted)
	} else {
		_ = state.EndSession(r.GitRoot, parent.ID, state.SessionFailed)
	}

	r.writeSummary(success, report.Stats)

	if success && r.Settings.CleanupOnSuccess {
		wtm := worktree.NewManager(r.GitRoot)
		if err := wtm.Remove(ctx, r.worktree, false); err != nil {
			r.log.Warn("worktree cleanup failed", "error", err)
		}
		paneterm.DestroySession(ctx, session)
		report.CleanedUp = true
	}

	if success {
		r.notify("on_success", fmt.Sprintf("Mobius completed %s (%d tasks) in %s", parent.Identifier, report.Stats.Done, report.Elapsed.Round(time.Second)))
	} else if !errors.Is(loopErr, ErrInterrupted) {
		r.notify("on_failure", fmt.Sprintf("Mobius failed on %s: %v", parent.Identifier, loopErr))
	}

	return report, loopErr
}

// loop is the per-iteration scheduling engine.
func (r *run) loop(ctx context.Context, g *graph.TaskGraph) error {
	for iteration := 1; ; iteration++ {
		if ctx.Err() != nil {
			return ErrInterrupted
		}
		if iteration > r.Settings.MaxIterations {
			return fmt.Errorf("%w (%d)", ErrMaxIterations, r.Settings.MaxIterations)
		}
		telemetry.TrackLoopIteration(r.parent.Identifier)

		// Re-sync from the sub-task files: they are the source of truth and
		// another process (or a prior crashed run) may have advanced them.
		fresh, err := r.loadGraph(ctx)
		if err != nil {
			return err
		}
		g = fresh

		if vg, ok := g.GetVerificationTask(); ok && vg.Status == graph.StatusDone {
			r.log.Info("verification gate is done", "identifier", vg.Identifier)
			return nil
		}
		stats := g.Stats()
		if stats.Done == stats.Total {
			return nil
		}

		ready := mergeReady(g.GetReady(), r.retryQueue)
		r.retryQueue = nil
		if len(ready) == 0 {
			blocked := g.GetBlocked()
			if len(blocked) == 0 {
				return nil
			}
			ids := make([]string, len(blocked))
			for i, t := range blocked {
				ids[i] = t.Identifier
			}
			r.log.Error("no ready tasks but blocked tasks remain", "blocked", strings.Join(ids, ", "))
			return fmt.Errorf("%w: blocked on %s", ErrAllBlocked, strings.Join(ids, ", "))
		}

		n := executor.CalculateParallelism(len(ready), r.Settings.MaxParallelAgents)
		batch := ready[:n]

		for _, t := range batch {
			r.tracker.Assign(t)
			_, _ = state.AddActiveTask(r.GitRoot, r.parent.ID, state.ActiveTask{
				ID:        t.ID,
				PID:       os.Getpid(),
				StartedAt: time.Now(),
				Worktree:  r.worktree.Path,
				Model:     r.modelFor(t),
			})
		}

		r.updateStatusPane(g, batch)
		telemetry.SetActiveAgents(r.parent.Identifier, len(batch))
		telemetry.SetTasksBlocked(r.parent.Identifier, g.Stats().Blocked)

		tasks := make([]executor.Task, len(batch))
		for i, t := range batch {
			tasks[i] = executor.Task{
				ID:           t.ID,
				Identifier:   t.Identifier,
				Title:        t.Title,
				WorktreePath: r.worktree.Path,
				ContextFile:  contextMirrorFile(r.worktree.Path),
				Model:        r.modelFor(t),
			}
		}

		results, spawns := r.exec.ExecuteBatch(ctx, tasks)
		for _, s := range spawns {
			_, _ = state.UpdateTaskPane(r.GitRoot, r.parent.ID, s.TaskID, s.PaneID)
		}

		pushResults, pushErr := queue.PushAll(ctx, r.GitRoot, r.parent.ID, r.pusher)
		if pushErr != nil {
			r.log.Warn("pending queue drain failed", "error", pushErr)
		}
		for _, pr := range pushResults {
			telemetry.TrackQueuePush(r.parent.Identifier, pr.Success)
		}

		verified := r.tracker.ProcessResults(results)
		permanent := r.settleResults(ctx, g, batch, verified)
		r.appendIterationLog(verified)

		if ctx.Err() != nil {
			return ErrInterrupted
		}
		if permanent {
			return fmt.Errorf("%w: %s", ErrPermanentFailure, failureSummary(verified))
		}
	}
}

// settleResults applies each verified result to the graph, local files,
// runtime state, and pending queue. Returns whether any failure was
// permanent.
func (r *run) settleResults(ctx context.Context, g *graph.TaskGraph, batch []graph.SubTask, verified []tracker.VerifiedResult) bool {
	byID := make(map[string]graph.SubTask, len(batch))
	for _, t := range batch {
		byID[t.ID] = t
	}

	permanent := false
	for i := range verified {
		res := &verified[i]
		task := byID[res.TaskID]

		switch {
		case res.Success && res.BackendVerified:
			if r.isSuspectFastVG(task, res) {
				r.vgFastRetries++
				telemetry.TrackVGFastRetry(r.parent.Identifier)
				r.log.Warn("verification gate finished suspiciously fast, requeueing",
					"identifier", task.Identifier,
					"duration_ms", res.DurationMS,
					"fast_retry", r.vgFastRetries,
				)
				_, _ = state.RemoveActiveTask(r.GitRoot, r.parent.ID, res.TaskID)
				r.retryQueue = append(r.retryQueue, task)
				continue
			}
			oldStatus := string(task.Status)
			if err := localstore.UpdateSubTaskStatus(r.GitRoot, r.parent.ID, task.Identifier, string(graph.StatusDone)); err != nil {
				r.log.Warn("sub-task file update failed", "identifier", task.Identifier, "error", err)
			}
			_, _ = state.CompleteTask(r.GitRoot, r.parent.ID, res.TaskID, res.DurationMS, 0, 0)
			telemetry.TrackTaskCompleted(r.parent.Identifier)
			telemetry.ObserveTaskDuration(r.parent.Identifier, float64(res.DurationMS)/1000)
			_, _ = state.UpdateBackendStatus(r.GitRoot, r.parent.ID, task.Identifier, res.BackendStatus)
			if err := queue.Enqueue(r.GitRoot, r.parent.ID, queue.Data{
				Kind:       queue.KindStatusChange,
				IssueID:    task.ID,
				Identifier: task.Identifier,
				OldStatus:  oldStatus,
				NewStatus:  "Done",
			}); err != nil {
				r.log.Warn("status-change enqueue failed", "identifier", task.Identifier, "error", err)
			}

		case res.ShouldRetry:
			r.log.Info("task failed, retrying", "identifier", task.Identifier, "error", res.Error)
			telemetry.TrackTaskRetry(r.parent.Identifier)
			_, _ = state.RemoveActiveTask(r.GitRoot, r.parent.ID, res.TaskID)
			r.retryQueue = append(r.retryQueue, task)

		default:
			// Permanent failure. A pane that is somehow still alive gets one
			// more chance; a dead one is final.
			if res.PaneID != "" && r.paneStillRunning(ctx, res.PaneID) {
				r.log.Warn("failure sentinel but pane still running, requeueing", "identifier", task.Identifier)
				_, _ = state.RemoveActiveTask(r.GitRoot, r.parent.ID, res.TaskID)
				r.retryQueue = append(r.retryQueue, task)
				continue
			}
			r.log.Error("task permanently failed", "identifier", task.Identifier, "error", res.Error)
			telemetry.TrackTaskFailed(r.parent.Identifier)
			_, _ = state.FailTask(r.GitRoot, r.parent.ID, res.TaskID, res.Error, res.DurationMS)
			permanent = true
		}
	}
	return permanent
}

func (r *run) isSuspectFastVG(task graph.SubTask, res *tracker.VerifiedResult) bool {
	if executor.SelectSkill(task.Title) != executor.SkillVerify {
		return false
	}
	if res.DurationMS >= r.Settings.VerificationTimeoutMS {
		return false
	}
	return r.vgFastRetries < r.Settings.MaxVGFastRetries
}

func (r *run) paneStillRunning(ctx context.Context, paneID string) bool {
	if r.Mux != nil {
		return r.Mux.IsPaneStillRunning(ctx, paneID)
	}
	return paneterm.IsPaneStillRunning(ctx, paneID)
}

func (r *run) appendIterationLog(verified []tracker.VerifiedResult) {
	for _, res := range verified {
		attempt := 1
		if a, ok := r.tracker.Assignments[res.TaskID]; ok {
			attempt = a.Attempts
		}
		status := localstore.IterationFailed
		if res.Success && res.BackendVerified {
			status = localstore.IterationSuccess
		} else if res.ShouldRetry {
			status = localstore.IterationPartial
		}
		entry := localstore.NewIterationEntry(
			res.Identifier,
			attempt,
			time.Now().Add(-time.Duration(res.DurationMS)*time.Millisecond),
			status,
			res.Error,
			"",
			nil,
		)
		if err := localstore.AppendIterationLog(r.GitRoot, r.parent.ID, entry); err != nil {
			r.log.Warn("iteration log append failed", "identifier", res.Identifier, "error", err)
		}
	}
}

// loadGraph reads the local sub-task files (seeding them from the backend
// on first run) and builds the dependency graph.
func (r *run) loadGraph(ctx context.Context) (*graph.TaskGraph, error) {
	tasks, err := localstore.ReadSubTasks(r.GitRoot, r.parent.ID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		issues, fetchErr := r.Backend.FetchSubtasks(ctx, r.parent)
		if fetchErr != nil || len(issues) == 0 {
			return graph.Build(r.parent.ID, r.parent.Identifier, nil), nil
		}
		for _, issue := range issues {
			spec := localstore.SubTaskContext{
				ID:            issue.ID,
				Identifier:    issue.Identifier,
				Title:         issue.Title,
				Status:        issue.Status,
				GitBranchName: issue.GitBranchName,
			}
			for _, b := range issue.BlockedBy {
				spec.BlockedBy = append(spec.BlockedBy, localstore.IssueRef{ID: b})
			}
			for _, b := range issue.Blocks {
				spec.Blocks = append(spec.Blocks, localstore.IssueRef{ID: b})
			}
			if err := localstore.WriteSubTaskSpec(r.GitRoot, r.parent.ID, spec); err != nil {
				return nil, fmt.Errorf("seed sub-task file %s: %w", issue.Identifier, err)
			}
		}
		tasks, err = localstore.ReadSubTasks(r.GitRoot, r.parent.ID)
		if err != nil {
			return nil, err
		}
	}

	raw := make([]graph.RawIssue, 0, len(tasks))
	for _, t := range tasks {
		raw = append(raw, graph.RawIssue{
			ID:            t.ID,
			Identifier:    t.Identifier,
			Title:         t.Title,
			Status:        t.Status,
			BlockedBy:     t.BlockedByIDs(),
			Blocks:        t.BlocksIDs(),
			GitBranchName: t.GitBranchName,
		})
	}
	g := graph.Build(r.parent.ID, r.parent.Identifier, raw)
	if selfRefs := g.DetectSelfReferences(); len(selfRefs) > 0 {
		r.log.Warn("sub-tasks list themselves as blockers", "ids", strings.Join(selfRefs, ", "))
	}
	return g, nil
}

// refreshContext regenerates the context bundle and mirrors it into the
// worktree. A mirror failure aborts the batch: an agent without context is
// worse than no agent.
func (r *run) refreshContext(ctx context.Context) error {
	tasks, err := localstore.ReadSubTasks(r.GitRoot, r.parent.ID)
	if err != nil {
		return err
	}
	parentSpec, ok := localstore.ReadParentSpec(r.GitRoot, r.parent.ID)
	if !ok {
		parentSpec = localstore.ParentIssueContext{
			ID:            r.parent.ID,
			Identifier:    r.parent.Identifier,
			Title:         r.parent.Title,
			GitBranchName: r.parent.GitBranchName,
			Status:        "In Progress",
		}
		_ = localstore.WriteParentSpec(r.GitRoot, r.parent.ID, parentSpec)
	}
	bundle, err := contextgen.Generate(r.GitRoot, r.parent.ID, parentSpec, tasks)
	if err != nil {
		return err
	}
	if err := contextgen.Mirror(r.worktree.Path, bundle); err != nil {
		return fmt.Errorf("mirror context into worktree: %w", err)
	}
	return nil
}

func (r *run) updateStatusPane(g *graph.TaskGraph, batch []graph.SubTask) {
	stats := g.Stats()
	agents := make([]paneterm.ActiveAgent, len(batch))
	for i, t := range batch {
		agents[i] = paneterm.ActiveAgent{TaskID: t.ID, Identifier: t.Identifier}
	}
	blocked := g.GetBlocked()
	blockedIDs := make([]string, len(blocked))
	for i, t := range blocked {
		blockedIDs[i] = t.Identifier
	}
	if err := paneterm.UpdateStatusPane(paneterm.LoopStatus{
		TotalTasks:     stats.Total,
		CompletedTasks: stats.Done,
		ActiveAgents:   agents,
		BlockedTasks:   blockedIDs,
		ElapsedMS:      time.Since(r.startedAt).Milliseconds(),
	}, r.session.Name); err != nil {
		r.log.Warn("status pane update failed", "error", err)
	}
}

func (r *run) writeSummary(success bool, stats graph.Stats) {
	s, exists := state.Read(r.GitRoot, r.parent.ID)
	if !exists {
		return
	}
	outcomes := make([]localstore.TaskOutcome, 0, len(s.CompletedTasks)+len(s.FailedTasks))
	for _, t := range s.CompletedTasks {
		outcomes = append(outcomes, localstore.TaskOutcome{Identifier: t.ID, Status: "done", DurationMS: t.DurationMS})
	}
	for _, t := range s.FailedTasks {
		outcomes = append(outcomes, localstore.TaskOutcome{Identifier: t.ID, Status: "failed", DurationMS: t.DurationMS})
	}
	_ = localstore.WriteSummary(r.GitRoot, r.parent.ID, localstore.CompletionSummary{
		ParentIdentifier: r.parent.Identifier,
		Success:          success,
		StartedAt:        r.startedAt,
		FinishedAt:       time.Now(),
		Tasks:            outcomes,
	})
}

func (r *run) modelFor(t graph.SubTask) string {
	if t.Scoring != nil && t.Scoring.RecommendedModel != "" {
		return t.Scoring.RecommendedModel
	}
	return r.Settings.Model
}

func (r *run) resolveAdapter() executor.RuntimeAdapter {
	if r.Adapter != nil {
		return r.Adapter
	}
	return executor.AdapterFor(r.Settings.AgentRuntime)
}

func (r *run) notify(event, message string) {
	if r.Notify != nil {
		r.Notify(event, message)
	}
}

// mergeReady unions the graph's ready tasks with the retry queue, deduped
// by id, preserving identifier-sorted order for the graph part.
func mergeReady(ready, retries []graph.SubTask) []graph.SubTask {
	seen := make(map[string]struct{}, len(ready))
	out := make([]graph.SubTask, 0, len(ready)+len(retries))
	for _, t := range ready {
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	for _, t := range retries {
		if _, dup := seen[t.ID]; !dup {
			seen[t.ID] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func failureSummary(verified []tracker.VerifiedResult) string {
	var parts []string
	for _, res := range tracker.GetPermanentlyFailedTasks(verified) {
		parts = append(parts, fmt.Sprintf("%s: %s", res.Identifier, res.Error))
	}
	return strings.Join(parts, "; ")
}

func contextMirrorFile(worktreePath string) string {
	return filepath.Join(layout.ContextMirrorDir(worktreePath), "context.md")
}

// writeStateGitignore writes .mobius/.gitignore containing "state/" when the
// file does not exist yet and leaves an existing file untouched. The pattern
// matches no directory of the internal/layout tree, so the execution/
// runtime files are not excluded by it.
func writeStateGitignore(gitRoot string) {
	path := layout.Gitignore(gitRoot)
	if _, err := os.Stat(path); err == nil {
		return
	}
	_ = os.MkdirAll(layout.Base(gitRoot), 0o755)
	_ = os.WriteFile(path, []byte("state/\n"), 0o644)
}
