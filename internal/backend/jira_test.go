package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJiraMissingCredentials(t *testing.T) {
	t.Setenv("JIRA_HOST", "")
	t.Setenv("JIRA_EMAIL", "")
	t.Setenv("JIRA_API_TOKEN", "")
	_, err := NewJira()
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func newTestJira(t *testing.T, handler http.HandlerFunc) *Jira {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Jira{baseURL: srv.URL, email: "a@b.com", token: "tok", httpClient: srv.Client()}
}

func TestJiraFetchParent(t *testing.T) {
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/issue/MOB-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "100", "key": "MOB-1",
			"fields": map[string]any{"summary": "Parent"},
		})
	})

	parent, err := j.FetchParent(context.Background(), "MOB-1")
	require.NoError(t, err)
	assert.Equal(t, "MOB-1", parent.Identifier)
	assert.Equal(t, "feature/mob-1", parent.GitBranchName)
}

func TestJiraFetchSubtasksUsesSearchJQL(t *testing.T) {
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/jql", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issues": []map[string]any{
				{
					"id": "101", "key": "MOB-2",
					"fields": map[string]any{
						"summary": "Child",
						"status":  map[string]any{"name": "In Progress"},
						"issuelinks": []map[string]any{
							{
								"type":        map[string]any{"name": "Blocks", "inward": "is blocked by"},
								"inwardIssue": map[string]any{"id": "99", "key": "MOB-3"},
							},
						},
					},
				},
			},
		})
	})

	subs, err := j.FetchSubtasks(context.Background(), ParentInfo{Identifier: "MOB-1"})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "MOB-2", subs[0].Identifier)
	assert.Equal(t, "In Progress", subs[0].Status)
	assert.Equal(t, []string{"MOB-3"}, subs[0].BlockedBy)
}

func TestJiraUpdateStatusCaseInsensitiveMatch(t *testing.T) {
	calls := 0
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch {
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"transitions": []map[string]any{
					{"id": "31", "name": "Done", "to": map[string]any{"name": "Done"}},
					{"id": "21", "name": "In Progress", "to": map[string]any{"name": "In Progress"}},
				},
			})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	err := j.UpdateStatus(context.Background(), "MOB-2", "done")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestJiraUpdateStatusNoMatchingTransition(t *testing.T) {
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"transitions": []map[string]any{
				{"id": "31", "name": "Done", "to": map[string]any{"name": "Done"}},
			},
		})
	})

	err := j.UpdateStatus(context.Background(), "MOB-2", "blocked")
	assert.ErrorIs(t, err, ErrNoTransition)
}

func TestJiraAuthFailed(t *testing.T) {
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := j.FetchParent(context.Background(), "MOB-1")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestJiraAddCommentWrapsADF(t *testing.T) {
	j := newTestJira(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "doc", body["body"].(map[string]any)["type"])
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "500"})
	})

	id, err := j.AddComment(context.Background(), "MOB-2", "hello")
	require.NoError(t, err)
	assert.Equal(t, "500", id)
}
