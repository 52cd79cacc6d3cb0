package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"mobius/internal/graph"
)

const linearAPIURL = "https://api.linear.app/graphql"

// Linear is the GraphQL-based backend.Client for Linear. Credentials come
// from LINEAR_API_KEY, falling back to LINEAR_API_TOKEN.
type Linear struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewLinear constructs a Linear client, reading credentials from the
// environment. Returns ErrMissingCredentials if neither variable is set.
func NewLinear() (*Linear, error) {
	key := os.Getenv("LINEAR_API_KEY")
	if key == "" {
		key = os.Getenv("LINEAR_API_TOKEN")
	}
	if key == "" {
		return nil, ErrMissingCredentials
	}
	return &Linear{apiKey: key, baseURL: linearAPIURL, httpClient: &http.Client{Timeout: 30 * time.Second}}, nil
}

type gqlRequest struct {
	Query     string `json:"query"`
	Variables any    `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse[T any] struct {
	Data   T          `json:"data"`
	Errors []gqlError `json:"errors"`
}

func (l *Linear) graphql(ctx context.Context, query string, variables any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", l.apiKey)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHTTP, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read linear response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ErrAuthFailed
	case http.StatusForbidden:
		return ErrPermissionDenied
	}
	if resp.StatusCode >= 400 {
		return httpError(resp.StatusCode, string(data))
	}

	var envelope gqlResponse[json.RawMessage]
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode linear response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, len(envelope.Errors))
		for i, e := range envelope.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(msgs, "; "))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

type linearIssueNode struct {
	ID               string  `json:"id"`
	Identifier       string  `json:"identifier"`
	Title            string  `json:"title"`
	BranchName       *string `json:"branchName"`
	State            *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"state"`
	InverseRelations *struct {
		Nodes []struct {
			Type  string `json:"type"`
			Issue struct {
				ID         string `json:"id"`
				Identifier string `json:"identifier"`
			} `json:"issue"`
		} `json:"nodes"`
	} `json:"inverseRelations"`
}

const fetchIssueQuery = `
query FetchIssue($id: String!) {
  issue(id: $id) {
    id
    identifier
    title
    branchName
    state { id name }
  }
}`

func (l *Linear) FetchParent(ctx context.Context, id string) (ParentInfo, error) {
	var data struct {
		Issue *linearIssueNode `json:"issue"`
	}
	if err := l.graphql(ctx, fetchIssueQuery, map[string]string{"id": id}, &data); err != nil {
		return ParentInfo{}, fmt.Errorf("fetch linear issue: %w", err)
	}
	if data.Issue == nil {
		return ParentInfo{}, fmt.Errorf("%w: issue %s", ErrNotFound, id)
	}
	branch := ""
	if data.Issue.BranchName != nil {
		branch = *data.Issue.BranchName
	} else {
		branch = "feat/" + strings.ToLower(data.Issue.Identifier)
	}
	return ParentInfo{
		ID:            data.Issue.ID,
		Identifier:    data.Issue.Identifier,
		Title:         data.Issue.Title,
		GitBranchName: branch,
	}, nil
}

const fetchSubIssuesQuery = `
query FetchSubIssues($parentId: String!) {
  issues(filter: { parent: { id: { eq: $parentId } } }) {
    nodes {
      id
      identifier
      title
      branchName
      state { id name }
      inverseRelations {
        nodes { type issue { id identifier } }
      }
    }
  }
}`

func (l *Linear) FetchSubtasks(ctx context.Context, parent ParentInfo) ([]graph.RawIssue, error) {
	var data struct {
		Issues struct {
			Nodes []linearIssueNode `json:"nodes"`
		} `json:"issues"`
	}
	if err := l.graphql(ctx, fetchSubIssuesQuery, map[string]string{"parentId": parent.ID}, &data); err != nil {
		return nil, fmt.Errorf("fetch linear sub-issues: %w", err)
	}

	out := make([]graph.RawIssue, 0, len(data.Issues.Nodes))
	for _, n := range data.Issues.Nodes {
		raw := graph.RawIssue{ID: n.ID, Identifier: n.Identifier, Title: n.Title}
		if n.State != nil {
			raw.Status = n.State.Name
		}
		if n.BranchName != nil {
			raw.GitBranchName = *n.BranchName
		}
		if n.InverseRelations != nil {
			for _, rel := range n.InverseRelations.Nodes {
				if rel.Type == "blocks" {
					raw.BlockedBy = append(raw.BlockedBy, rel.Issue.ID)
				}
			}
		}
		out = append(out, raw)
	}
	return out, nil
}

func (l *Linear) FetchStatus(ctx context.Context, identifier string) (string, error) {
	var data struct {
		Issue *linearIssueNode `json:"issue"`
	}
	if err := l.graphql(ctx, fetchIssueQuery, map[string]string{"id": identifier}, &data); err != nil {
		return "", fmt.Errorf("fetch linear status: %w", err)
	}
	if data.Issue == nil || data.Issue.State == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, identifier)
	}
	return data.Issue.State.Name, nil
}

const teamStatesQuery = `
query TeamStates($teamId: String!) {
  team(id: $teamId) { states { nodes { id name } } }
}`

func (l *Linear) resolveStateID(ctx context.Context, teamID, statusName string) (string, error) {
	var data struct {
		Team struct {
			States struct {
				Nodes []struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"nodes"`
			} `json:"states"`
		} `json:"team"`
	}
	if err := l.graphql(ctx, teamStatesQuery, map[string]string{"teamId": teamID}, &data); err != nil {
		return "", err
	}
	for _, s := range data.Team.States.Nodes {
		if strings.EqualFold(s.Name, statusName) {
			return s.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrStatusNotFound, statusName)
}

const updateIssueStatusMutation = `
mutation UpdateIssueStatus($id: String!, $stateId: String!) {
  issueUpdate(id: $id, input: { stateId: $stateId }) { success }
}`

func (l *Linear) UpdateStatus(ctx context.Context, issueID, newStatus string) error {
	var data struct {
		IssueUpdate struct {
			Success bool `json:"success"`
		} `json:"issueUpdate"`
	}
	if err := l.graphql(ctx, updateIssueStatusMutation, map[string]string{"id": issueID, "stateId": newStatus}, &data); err != nil {
		return fmt.Errorf("update linear status: %w", err)
	}
	if !data.IssueUpdate.Success {
		return fmt.Errorf("%w: issueUpdate returned success=false", ErrGraphQL)
	}
	return nil
}

const addCommentMutation = `
mutation AddComment($issueId: String!, $body: String!) {
  commentCreate(input: { issueId: $issueId, body: $body }) { success comment { id } }
}`

func (l *Linear) AddComment(ctx context.Context, issueID, body string) (string, error) {
	var data struct {
		CommentCreate struct {
			Success bool `json:"success"`
			Comment struct {
				ID string `json:"id"`
			} `json:"comment"`
		} `json:"commentCreate"`
	}
	if err := l.graphql(ctx, addCommentMutation, map[string]string{"issueId": issueID, "body": body}, &data); err != nil {
		return "", fmt.Errorf("add linear comment: %w", err)
	}
	if !data.CommentCreate.Success {
		return "", fmt.Errorf("%w: commentCreate returned success=false", ErrGraphQL)
	}
	return data.CommentCreate.Comment.ID, nil
}

const createIssueMutation = `
mutation CreateIssue($input: IssueCreateInput!) {
  issueCreate(input: $input) { success issue { id identifier } }
}`

func (l *Linear) CreateIssue(ctx context.Context, input CreateIssueInput) (CreatedIssue, error) {
	payload := map[string]any{
		"teamId":      input.TeamOrProject,
		"title":       input.Title,
		"description": input.Description,
	}
	if input.ParentID != "" {
		payload["parentId"] = input.ParentID
	}
	if len(input.Labels) > 0 {
		payload["labelIds"] = input.Labels
	}

	var data struct {
		IssueCreate struct {
			Success bool `json:"success"`
			Issue   struct {
				ID         string `json:"id"`
				Identifier string `json:"identifier"`
			} `json:"issue"`
		} `json:"issueCreate"`
	}
	if err := l.graphql(ctx, createIssueMutation, map[string]any{"input": payload}, &data); err != nil {
		return CreatedIssue{}, fmt.Errorf("create linear issue: %w", err)
	}
	if !data.IssueCreate.Success {
		return CreatedIssue{}, fmt.Errorf("%w: issueCreate returned success=false", ErrGraphQL)
	}

	created := CreatedIssue{ID: data.IssueCreate.Issue.ID, Identifier: data.IssueCreate.Issue.Identifier}
	for _, blocker := range input.Blockers {
		if err := l.LinkBlocks(ctx, blocker, created.ID); err != nil {
			return created, fmt.Errorf("link blocker %s: %w", blocker, err)
		}
	}
	return created, nil
}

const createRelationMutation = `
mutation CreateRelation($issueId: String!, $relatedIssueId: String!, $type: IssueRelationType!) {
  issueRelationCreate(input: { issueId: $issueId, relatedIssueId: $relatedIssueId, type: $type }) { success }
}`

func (l *Linear) LinkBlocks(ctx context.Context, blockerID, blockedID string) error {
	var data struct {
		IssueRelationCreate struct {
			Success bool `json:"success"`
		} `json:"issueRelationCreate"`
	}
	vars := map[string]string{"issueId": blockerID, "relatedIssueId": blockedID, "type": "blocks"}
	if err := l.graphql(ctx, createRelationMutation, vars, &data); err != nil {
		return fmt.Errorf("create linear relation: %w", err)
	}
	if !data.IssueRelationCreate.Success {
		return fmt.Errorf("%w: issueRelationCreate returned success=false", ErrGraphQL)
	}
	return nil
}
