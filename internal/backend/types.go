// Package backend adapts a narrow issue-tracker contract to concrete Linear,
// Jira, and local implementations. Auto-detection of which backend to use
// lives in package contextgen (DetectBackend), not here.
package backend

import (
	"context"
	"errors"
	"fmt"

	"mobius/internal/graph"
)

// Kind names one of the three supported backend implementations.
type Kind string

const (
	KindLocal  Kind = "local"
	KindJira   Kind = "jira"
	KindLinear Kind = "linear"
)

// Sentinel errors forming the boundary error taxonomy. Concrete adapters wrap these with fmt.Errorf("...: %w", ...) so
// callers can branch with errors.Is regardless of which backend raised it.
var (
	ErrMissingCredentials = errors.New("backend: missing credentials")
	ErrAuthFailed         = errors.New("backend: authentication failed")
	ErrPermissionDenied   = errors.New("backend: permission denied")
	ErrNotFound           = errors.New("backend: not found")
	ErrBadRequest         = errors.New("backend: bad request")
	ErrHTTP               = errors.New("backend: http error")
	ErrNoTransition       = errors.New("backend: no workflow transition to requested status")
	ErrStatusNotFound     = errors.New("backend: status not found")
	ErrGraphQL            = errors.New("backend: graphql error")
)

// ParentInfo is the minimal parent-issue shape every backend can fetch.
type ParentInfo struct {
	ID            string
	Identifier    string
	Title         string
	GitBranchName string
}

// CreateIssueInput is the payload for creating a new sub-task issue.
type CreateIssueInput struct {
	TeamOrProject string
	Title         string
	Description   string
	ParentID      string
	Blockers      []string
	Labels        []string
	Priority      string
}

// CreatedIssue is the identity of a freshly created issue.
type CreatedIssue struct {
	ID         string
	Identifier string
}

// Client is the narrow adapter contract every backend implements.
type Client interface {
	FetchParent(ctx context.Context, id string) (ParentInfo, error)
	FetchSubtasks(ctx context.Context, parent ParentInfo) ([]graph.RawIssue, error)
	FetchStatus(ctx context.Context, identifier string) (string, error)
	UpdateStatus(ctx context.Context, issueID, newStatus string) error
	AddComment(ctx context.Context, issueID, body string) (commentID string, err error)
	CreateIssue(ctx context.Context, input CreateIssueInput) (CreatedIssue, error)
	LinkBlocks(ctx context.Context, blockerID, blockedID string) error
}

// Verifier is an optional capability a Client may additionally implement:
// a mandatory re-check against the backend's own notion of status, for
// callers that do not want to rely on the optimistic agent-reported
// acceptance the tracker applies by default. None of the Linear, Jira, or
// Local clients in this package implements it.
type Verifier interface {
	VerifyStatus(ctx context.Context, identifier, expectedStatus string) (bool, error)
}

// httpError renders a ErrHTTP-wrapping error carrying the status code and
// a truncated response body.
func httpError(code int, body string) error {
	return fmt.Errorf("%w: status=%d body=%s", ErrHTTP, code, truncate(body, 500))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
