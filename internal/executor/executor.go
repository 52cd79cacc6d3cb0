package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mobius/internal/paneparser"
	"mobius/internal/paneterm"
	"mobius/internal/tracker"
)

// Mux is the slice of the pane multiplexer the executor drives. paneterm's
// tmux adapter satisfies it via TmuxMux; tests substitute a mock.
type Mux interface {
	CreateAgentPane(ctx context.Context, session *paneterm.Session, identifier, title, sourcePaneID string) (*paneterm.Pane, error)
	RunInPane(ctx context.Context, paneID, command string, clearFirst bool)
	CapturePaneContent(ctx context.Context, paneID string, lines int) string
	SetPaneTitle(ctx context.Context, paneID, title string)
	KillPane(ctx context.Context, paneID string)
	InterruptPane(ctx context.Context, paneID string)
	LayoutPanes(ctx context.Context, session *paneterm.Session, paneCount int)
	IsPaneStillRunning(ctx context.Context, paneID string) bool
}

// TmuxMux adapts package paneterm's function surface to the Mux interface.
type TmuxMux struct{}

func (TmuxMux) CreateAgentPane(ctx context.Context, s *paneterm.Session, identifier, title, source string) (*paneterm.Pane, error) {
	return paneterm.CreateAgentPane(ctx, s, identifier, title, source)
}
func (TmuxMux) RunInPane(ctx context.Context, paneID, command string, clearFirst bool) {
	paneterm.RunInPane(ctx, paneID, command, clearFirst)
}
func (TmuxMux) CapturePaneContent(ctx context.Context, paneID string, lines int) string {
	return paneterm.CapturePaneContent(ctx, paneID, lines)
}
func (TmuxMux) SetPaneTitle(ctx context.Context, paneID, title string) {
	paneterm.SetPaneTitle(ctx, paneID, title)
}
func (TmuxMux) KillPane(ctx context.Context, paneID string)      { paneterm.KillPane(ctx, paneID) }
func (TmuxMux) InterruptPane(ctx context.Context, paneID string) { paneterm.InterruptPane(ctx, paneID) }
func (TmuxMux) LayoutPanes(ctx context.Context, s *paneterm.Session, n int) {
	paneterm.LayoutPanes(ctx, s, n)
}
func (TmuxMux) IsPaneStillRunning(ctx context.Context, paneID string) bool {
	return paneterm.IsPaneStillRunning(ctx, paneID)
}

// Executor runs batches of tasks against one tmux session.
type Executor struct {
	cfg     Config
	session *paneterm.Session
	mux     Mux
	adapter RuntimeAdapter
	log     *slog.Logger

	// initialPaneUsed flips once the session's initial pane has hosted a
	// task, so only the first task of the first batch reuses it.
	initialPaneUsed bool
}

// New creates an Executor bound to a session. A nil mux or adapter falls
// back to the tmux/claude defaults.
func New(cfg Config, session *paneterm.Session, mux Mux, adapter RuntimeAdapter, log *slog.Logger) *Executor {
	if mux == nil {
		mux = TmuxMux{}
	}
	if adapter == nil {
		adapter = ClaudeAdapter{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{cfg: cfg.withDefaults(), session: session, mux: mux, adapter: adapter, log: log}
}

// spawned pairs a task with the pane it was launched into.
type spawned struct {
	task      Task
	paneID    string
	startedAt time.Time
}

// SpawnInfo reports which pane a task was launched into, so the
// orchestrator can backfill RuntimeState pane ids after the spawn.
type SpawnInfo struct {
	TaskID string
	PaneID string
}

// ExecuteBatch runs every task to a terminal state and returns one
// ExecutionResult per task. Spawning is serial (tmux split-window races
// against itself); waiting is concurrent, one goroutine per pane, all
// joined before returning.
func (e *Executor) ExecuteBatch(ctx context.Context, tasks []Task) ([]tracker.ExecutionResult, []SpawnInfo) {
	if len(tasks) == 0 {
		return nil, nil
	}

	var launched []spawned
	var results []tracker.ExecutionResult
	lastPane := ""

	for _, task := range tasks {
		paneID, err := e.spawnTask(ctx, task, lastPane)
		if err != nil {
			e.log.Warn("agent spawn failed", "task_id", task.ID, "identifier", task.Identifier, "error", err)
			results = append(results, tracker.ExecutionResult{
				TaskID:     task.ID,
				Identifier: task.Identifier,
				Success:    false,
				Error:      fmt.Sprintf("spawn failed: %v", err),
			})
			continue
		}
		lastPane = paneID
		launched = append(launched, spawned{task: task, paneID: paneID, startedAt: time.Now()})
	}

	e.mux.LayoutPanes(ctx, e.session, len(launched)+1)

	spawnInfos := make([]SpawnInfo, len(launched))
	for i, s := range launched {
		spawnInfos[i] = SpawnInfo{TaskID: s.task.ID, PaneID: s.paneID}
	}

	waited := make([]tracker.ExecutionResult, len(launched))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range launched {
		i, s := i, s
		g.Go(func() error {
			res := e.waitForCompletion(gctx, s)
			mu.Lock()
			waited[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return append(results, waited...), spawnInfos
}

func (e *Executor) spawnTask(ctx context.Context, task Task, sourcePane string) (string, error) {
	var paneID string
	if !e.initialPaneUsed {
		paneID = e.session.InitialPaneID
		e.initialPaneUsed = true
		e.mux.SetPaneTitle(ctx, paneID, task.Identifier+": "+task.Title)
	} else {
		pane, err := e.mux.CreateAgentPane(ctx, e.session, task.Identifier, task.Title, sourcePane)
		if err != nil {
			return "", err
		}
		paneID = pane.ID
	}

	model := task.Model
	if model == "" {
		model = e.cfg.Model
	}
	command := e.adapter.BuildCommand(CommandSpec{
		Model:           model,
		Skill:           SelectSkill(task.Title),
		Identifier:      task.Identifier,
		TaskID:          task.ID,
		Worktree:        task.WorktreePath,
		ContextFile:     task.ContextFile,
		DisallowedTools: e.cfg.DisallowedTools,
	})

	e.log.Info("spawning agent", "identifier", task.Identifier, "pane", paneID, "skill", SelectSkill(task.Title))
	e.mux.RunInPane(ctx, paneID, command, true)
	return paneID, nil
}

// waitForCompletion polls a pane until a terminal sentinel appears or the
// per-agent timeout expires.
func (e *Executor) waitForCompletion(ctx context.Context, s spawned) tracker.ExecutionResult {
	deadline := time.Now().Add(e.cfg.AgentTimeout)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return e.timeoutResult(ctx, s, "batch cancelled")
		case <-ticker.C:
		}

		raw := e.mux.CapturePaneContent(ctx, s.paneID, e.cfg.CaptureLines)
		if outcome, terminal := paneparser.ClassifySentinel(raw); terminal {
			return e.classify(ctx, s, raw, outcome)
		}

		if time.Now().After(deadline) {
			return e.timeoutResult(ctx, s, fmt.Sprintf("agent timed out after %s", e.cfg.AgentTimeout))
		}
	}
}

func (e *Executor) classify(ctx context.Context, s spawned, raw string, outcome paneparser.SentinelOutcome) tracker.ExecutionResult {
	duration := time.Since(s.startedAt).Milliseconds()
	res := tracker.ExecutionResult{
		TaskID:     s.task.ID,
		Identifier: s.task.Identifier,
		Success:    outcome.Success,
		DurationMS: duration,
		PaneID:     s.paneID,
		RawOutput:  raw,
	}

	switch {
	case outcome.Success:
		res.Status = tracker.StatusSubtaskComplete
		e.mux.SetPaneTitle(ctx, s.paneID, "[done] "+s.task.Identifier)
	case outcome.Status == paneparser.StatusVerificationFailed:
		res.Status = tracker.StatusVerificationFailed
		res.Error = outcome.ErrorSummary
		if res.Error == "" {
			res.Error = "verification failed"
		}
		e.mux.SetPaneTitle(ctx, s.paneID, "[failed] "+s.task.Identifier)
	default:
		res.Error = outcome.ErrorSummary
		e.mux.SetPaneTitle(ctx, s.paneID, "[failed] "+s.task.Identifier)
	}

	// The structured block carries fields the sentinel line cannot (commit
	// hash, modified files); a parse miss here is not an error.
	if parsed, err := paneparser.Parse(raw); err == nil {
		res.CommitHash = parsed.CommitHash
		res.ModifiedFiles = parsed.FilesModified
	}

	e.log.Info("agent finished",
		"identifier", s.task.Identifier,
		"success", res.Success,
		"duration_ms", duration,
	)
	return res
}

func (e *Executor) timeoutResult(ctx context.Context, s spawned, msg string) tracker.ExecutionResult {
	e.mux.InterruptPane(ctx, s.paneID)
	e.mux.KillPane(ctx, s.paneID)
	e.log.Warn("agent timed out", "identifier", s.task.Identifier, "pane", s.paneID)
	return tracker.ExecutionResult{
		TaskID:     s.task.ID,
		Identifier: s.task.Identifier,
		Success:    false,
		Status:     tracker.StatusTimedOut,
		DurationMS: time.Since(s.startedAt).Milliseconds(),
		PaneID:     s.paneID,
		Error:      msg,
	}
}

// Summarize aggregates a batch's results.
func Summarize(results []tracker.ExecutionResult) BatchSummary {
	sum := BatchSummary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			sum.Succeeded++
			sum.CompletedIdentifiers = append(sum.CompletedIdentifiers, r.Identifier)
		} else {
			sum.Failed++
			sum.FailureDetails = append(sum.FailureDetails, fmt.Sprintf("%s: %s", r.Identifier, r.Error))
		}
	}
	return sum
}
