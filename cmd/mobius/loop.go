package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mobius/internal/backend"
	"mobius/internal/config"
	"mobius/internal/contextgen"
	"mobius/internal/git"
	"mobius/internal/notify"
	"mobius/internal/orchestrator"
	"mobius/internal/telemetry"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

var loopCmd = &cobra.Command{
	Use:   "loop <TASK-ID>",
	Short: "Execute a parent issue's sub-tasks with parallel agents",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoop,
}

func init() {
	loopCmd.Flags().String("backend", "", "issue tracker backend (local, linear, jira; auto-detected when empty)")
	loopCmd.Flags().String("model", "", "agent model override")
	loopCmd.Flags().String("thinking-level", "", "agent thinking level")
	loopCmd.Flags().Int("parallel", 0, "max parallel agents")
	loopCmd.Flags().Int("max-iterations", 0, "scheduling iteration cap")
	loopCmd.Flags().Bool("fresh", false, "discard prior runtime state before starting")
	loopCmd.Flags().Bool("no-submit", false, "accepted for compatibility; has no effect (the loop never submits a PR)")
	loopCmd.Flags().Bool("no-tui", false, "skip the tmux status pane")

	_ = viper.BindPFlag("backend", loopCmd.Flags().Lookup("backend"))
	_ = viper.BindPFlag("model", loopCmd.Flags().Lookup("model"))
	_ = viper.BindPFlag("thinking_level", loopCmd.Flags().Lookup("thinking-level"))
}

func runLoop(cmd *cobra.Command, args []string) error {
	identifier := args[0]

	settings := config.Resolve()
	if n, _ := cmd.Flags().GetInt("parallel"); n > 0 {
		settings.MaxParallelAgents = n
	}
	if n, _ := cmd.Flags().GetInt("max-iterations"); n > 0 {
		settings.MaxIterations = n
	}
	fresh, _ := cmd.Flags().GetBool("fresh")
	noTUI, _ := cmd.Flags().GetBool("no-tui")

	gitRoot := git.NewClient().RepoRootOrCwd(cmd.Context())

	kind := backend.Kind(settings.Backend)
	if kind == "" {
		kind = contextgen.DetectBackend(gitRoot)
	}
	client, err := backend.New(kind, gitRoot)
	if err != nil {
		return err
	}

	if settings.MetricsPort > 0 {
		go func() { _ = telemetry.StartMetricsServer(settings.MetricsPort) }()
	}

	log := telemetry.ForParent(identifier)
	notifier := notify.NewManager(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	})
	threadState := ""

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := orchestrator.Run(ctx, orchestrator.Options{
		Settings:     settings,
		GitRoot:      gitRoot,
		Identifier:   identifier,
		BackendKind:  kind,
		Backend:      client,
		Fresh:        fresh,
		NoStatusPane: noTUI,
		Notify: func(event, message string) {
			newState, notifyErr := notifier.Notify(ctx, event, message, threadState)
			if notifyErr == nil {
				threadState = newState
			}
		},
		Log: log,
	})

	switch {
	case runErr == nil:
		fmt.Println(successStyle.Render(fmt.Sprintf(
			"%s complete: %d/%d tasks done in %s",
			identifier, report.Stats.Done, report.Stats.Total, report.Elapsed.Round(time.Second),
		)))
		_ = notifier.AddReaction(ctx, threadState, "white_check_mark")
		if !report.CleanedUp {
			printAttachHints(report)
		}
		return nil

	case errors.Is(runErr, orchestrator.ErrInterrupted):
		fmt.Println(failureStyle.Render("Interrupted. Active tasks cleared; worktree and session preserved."))
		printAttachHints(report)
		exit(130)
		return nil

	default:
		fmt.Println(failureStyle.Render(fmt.Sprintf("%s failed: %v", identifier, runErr)))
		_ = notifier.AddReaction(ctx, threadState, "x")
		printAttachHints(report)
		exit(1)
		return nil
	}
}

func printAttachHints(report orchestrator.Report) {
	if report.SessionName != "" {
		fmt.Println(hintStyle.Render("  attach to agents:  tmux attach -t " + report.SessionName))
	}
	if report.WorktreePath != "" {
		fmt.Println(hintStyle.Render("  inspect worktree:  cd " + report.WorktreePath))
	}
}
