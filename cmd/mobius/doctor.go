package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"mobius/internal/backend"
	"mobius/internal/config"
	"mobius/internal/contextgen"
	"mobius/internal/git"
	"mobius/internal/layout"
	"mobius/internal/queue"
	"mobius/internal/state"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	badStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the environment Mobius needs to run",
	RunE:  runDoctor,
}

type check struct {
	name     string
	required bool
	run      func() (ok bool, detail string)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	settings := config.Resolve()
	gitRoot := git.NewClient().RepoRootOrCwd(cmd.Context())

	kind := backend.Kind(settings.Backend)
	if kind == "" {
		kind = contextgen.DetectBackend(gitRoot)
	}

	checks := []check{
		{
			name:     "tmux binary",
			required: true,
			run: func() (bool, string) {
				path, err := exec.LookPath("tmux")
				if err != nil {
					return false, "tmux not found on PATH"
				}
				return true, path
			},
		},
		{
			name:     "git repository",
			required: true,
			run: func() (bool, string) {
				if git.NewClient().RepoExists(gitRoot) {
					return true, gitRoot
				}
				return false, "not inside a git repository"
			},
		},
		{
			name:     ".mobius directory writable",
			required: true,
			run: func() (bool, string) {
				base := layout.Base(gitRoot)
				if err := os.MkdirAll(base, 0o755); err != nil {
					return false, err.Error()
				}
				probe := filepath.Join(base, ".doctor-probe")
				if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
					return false, err.Error()
				}
				_ = os.Remove(probe)
				return true, base
			},
		},
		{
			name:     fmt.Sprintf("%s credentials", kind),
			required: true,
			run:      func() (bool, string) { return checkCredentials(kind) },
		},
		{
			name:     "no stale runtime locks",
			required: false,
			run:      func() (bool, string) { return checkStaleLocks(gitRoot) },
		},
		{
			name:     "recent sync failures",
			required: false,
			run:      func() (bool, string) { return checkSyncFailures(gitRoot) },
		},
	}

	anyRequiredFailed := false
	for _, c := range checks {
		ok, detail := c.run()
		switch {
		case ok:
			fmt.Printf("%s %s: %s\n", okStyle.Render("[ok]"), c.name, detail)
		case c.required:
			anyRequiredFailed = true
			fmt.Printf("%s %s: %s\n", badStyle.Render("[fail]"), c.name, detail)
		default:
			fmt.Printf("%s %s: %s\n", warnStyle.Render("[warn]"), c.name, detail)
		}
	}

	if anyRequiredFailed {
		exit(1)
	}
	return nil
}

func checkCredentials(kind backend.Kind) (bool, string) {
	switch kind {
	case backend.KindLocal:
		return true, "local backend needs none"
	case backend.KindLinear:
		if os.Getenv("LINEAR_API_KEY") != "" || os.Getenv("LINEAR_API_TOKEN") != "" {
			return true, "LINEAR_API_KEY present"
		}
		return false, "LINEAR_API_KEY (or LINEAR_API_TOKEN) not set"
	case backend.KindJira:
		var missing []string
		for _, v := range []string{"JIRA_HOST", "JIRA_EMAIL", "JIRA_API_TOKEN"} {
			if os.Getenv(v) == "" {
				missing = append(missing, v)
			}
		}
		if len(missing) == 0 {
			return true, "JIRA_HOST/JIRA_EMAIL/JIRA_API_TOKEN present"
		}
		return false, "missing " + strings.Join(missing, ", ")
	default:
		return false, fmt.Sprintf("unknown backend %q", kind)
	}
}

// checkStaleLocks scans every parent's runtime lock for one older than the
// lock timeout — a sign of a crashed loop holding state hostage.
func checkStaleLocks(gitRoot string) (bool, string) {
	entries, err := os.ReadDir(layout.IssuesDir(gitRoot))
	if err != nil {
		return true, "no issue store yet"
	}
	var stale []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		lockPath := layout.RuntimeLockPath(gitRoot, e.Name())
		data, readErr := os.ReadFile(lockPath)
		if readErr != nil {
			continue
		}
		ms, parseErr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if parseErr != nil || time.Since(time.UnixMilli(ms)) > state.LockTimeout {
			stale = append(stale, e.Name())
		}
	}
	if len(stale) == 0 {
		return true, "none"
	}
	return false, "stale lock for " + strings.Join(stale, ", ") + " (a crashed run? the next loop will break it)"
}

// checkSyncFailures surfaces the most recent failed pushes from each
// parent's sync log.
func checkSyncFailures(gitRoot string) (bool, string) {
	entries, err := os.ReadDir(layout.IssuesDir(gitRoot))
	if err != nil {
		return true, "no issue store yet"
	}
	failures := 0
	last := ""
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		for _, rec := range queue.ReadSyncLog(gitRoot, e.Name()).Entries {
			if !rec.Success {
				failures++
				last = fmt.Sprintf("%s %s: %s", e.Name(), rec.Kind, rec.Error)
			}
		}
	}
	if failures == 0 {
		return true, "none"
	}
	return false, fmt.Sprintf("%d failed sync attempts, last: %s", failures, last)
}
