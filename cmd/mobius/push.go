package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mobius/internal/backend"
	"mobius/internal/config"
	"mobius/internal/contextgen"
	"mobius/internal/git"
	"mobius/internal/layout"
	"mobius/internal/queue"
	"mobius/internal/state"
)

var pushCmd = &cobra.Command{
	Use:   "push [TASK-ID]",
	Short: "Drain queued tracker updates outside of a loop run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPush,
}

func init() {
	pushCmd.Flags().String("backend", "", "issue tracker backend (auto-detected when empty)")
	pushCmd.Flags().Bool("dry-run", false, "report what would sync without pushing")
	pushCmd.Flags().Bool("all", false, "push every parent's queue, not just the current session's")
	pushCmd.Flags().Bool("summary", false, "print queue counts by type and status")
}

func runPush(cmd *cobra.Command, args []string) error {
	settings := config.Resolve()
	if b, _ := cmd.Flags().GetString("backend"); b != "" {
		settings.Backend = b
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	all, _ := cmd.Flags().GetBool("all")
	summary, _ := cmd.Flags().GetBool("summary")

	gitRoot := git.NewClient().RepoRootOrCwd(cmd.Context())

	parents, err := resolvePushTargets(gitRoot, args, all)
	if err != nil {
		return err
	}
	if len(parents) == 0 {
		fmt.Println("Nothing to push: no parent issues found.")
		return nil
	}

	kind := backend.Kind(settings.Backend)
	if kind == "" {
		kind = contextgen.DetectBackend(gitRoot)
	}
	client, err := backend.New(kind, gitRoot)
	if err != nil {
		return err
	}
	pusher := backend.QueuePusher{Client: client}

	for _, parentID := range parents {
		q := queue.Read(gitRoot, parentID)

		if summary {
			printQueueSummary(parentID, q)
			continue
		}

		if dryRun {
			for _, u := range q.Updates {
				if u.SyncedAt != nil || u.Error != nil {
					continue
				}
				fmt.Printf("%s: would push %s for %s\n", parentID, u.Data.Kind, u.Data.Identifier)
			}
			continue
		}

		results, pushErr := queue.PushAll(cmd.Context(), gitRoot, parentID, pusher)
		for _, res := range results {
			if res.Success {
				fmt.Printf("%s: pushed %s for %s\n", parentID, res.Kind, res.IssueIdentifier)
			} else {
				fmt.Printf("%s: FAILED %s for %s: %s\n", parentID, res.Kind, res.IssueIdentifier, res.Error)
			}
		}
		if pushErr != nil {
			return pushErr
		}
	}
	return nil
}

// resolvePushTargets picks which parents' queues to drain: the explicit
// argument, every known parent with --all, or the current session's.
func resolvePushTargets(gitRoot string, args []string, all bool) ([]string, error) {
	if len(args) == 1 {
		return []string{args[0]}, nil
	}
	if all {
		entries, err := os.ReadDir(layout.IssuesDir(gitRoot))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		var parents []string
		for _, e := range entries {
			if e.IsDir() {
				parents = append(parents, e.Name())
			}
		}
		return parents, nil
	}
	if current, ok := state.CurrentSession(gitRoot); ok {
		return []string{current}, nil
	}
	return nil, fmt.Errorf("no TASK-ID given and no active session; pass an id or --all")
}

func printQueueSummary(parentID string, q queue.Queue) {
	byKind := make(map[queue.UpdateKind]int)
	synced, errored, pending := 0, 0, 0
	for _, u := range q.Updates {
		byKind[u.Data.Kind]++
		switch {
		case u.SyncedAt != nil:
			synced++
		case u.Error != nil:
			errored++
		default:
			pending++
		}
	}
	fmt.Printf("%s: %d updates (%d pending, %d synced, %d errored)\n", parentID, len(q.Updates), pending, synced, errored)
	for kind, n := range byKind {
		fmt.Printf("  %-20s %d\n", kind, n)
	}
}
