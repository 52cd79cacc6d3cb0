package backend

import (
	"context"
	"fmt"
	"regexp"

	"mobius/internal/queue"
)

// localIDPattern matches local-only identifiers, whose tracker writes are
// no-ops that always succeed — there is no remote issue to mutate.
var localIDPattern = regexp.MustCompile(`^(LOC|task)-\d+$`)

// QueuePusher adapts a backend Client to the pending-update queue's Pusher
// contract, dispatching on the update's tagged variant.
type QueuePusher struct {
	Client Client
}

// Push applies one queued update against the backend. Variants the narrow
// Client contract cannot express (description and label edits) fail with a
// descriptive error, which the queue stamps on the entry — surfacing the
// gap instead of silently dropping the update.
func (p QueuePusher) Push(ctx context.Context, d queue.Data) (string, error) {
	if localIDPattern.MatchString(d.Identifier) || localIDPattern.MatchString(d.IssueID) {
		return "local identifier, no backend write", nil
	}

	switch d.Kind {
	case queue.KindStatusChange:
		if err := p.Client.UpdateStatus(ctx, d.IssueID, d.NewStatus); err != nil {
			return "", err
		}
		return fmt.Sprintf("status %s -> %s", d.OldStatus, d.NewStatus), nil

	case queue.KindAddComment:
		commentID, err := p.Client.AddComment(ctx, d.IssueID, d.Body)
		if err != nil {
			return "", err
		}
		return "comment " + commentID, nil

	case queue.KindCreateSubtask:
		created, err := p.Client.CreateIssue(ctx, CreateIssueInput{
			Title:       d.Title,
			Description: d.Description,
			ParentID:    d.ParentID,
			Blockers:    d.BlockedBy,
		})
		if err != nil {
			return "", err
		}
		for _, blocker := range d.BlockedBy {
			if err := p.Client.LinkBlocks(ctx, blocker, created.ID); err != nil {
				return "", fmt.Errorf("created %s but linking blocker %s failed: %w", created.Identifier, blocker, err)
			}
		}
		return "created " + created.Identifier, nil

	case queue.KindUpdateDescription, queue.KindAddLabel, queue.KindRemoveLabel:
		return "", fmt.Errorf("update kind %q not supported by this backend adapter", d.Kind)

	default:
		return "", fmt.Errorf("unknown update kind %q", d.Kind)
	}
}
