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

func TestNewLinearMissingCredentials(t *testing.T) {
	t.Setenv("LINEAR_API_KEY", "")
	t.Setenv("LINEAR_API_TOKEN", "")
	_, err := NewLinear()
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestNewLinearFallsBackToToken(t *testing.T) {
	t.Setenv("LINEAR_API_KEY", "")
	t.Setenv("LINEAR_API_TOKEN", "tok")
	l, err := NewLinear()
	require.NoError(t, err)
	assert.Equal(t, "tok", l.apiKey)
}

func newTestLinear(t *testing.T, handler http.HandlerFunc) *Linear {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Linear{apiKey: "test-key", baseURL: srv.URL, httpClient: srv.Client()}
}

func TestLinearFetchParent(t *testing.T) {
	l := newTestLinear(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"issue": map[string]any{
					"id": "abc", "identifier": "MOB-1", "title": "Parent",
					"state": map[string]any{"id": "s1", "name": "Backlog"},
				},
			},
		})
	})

	parent, err := l.FetchParent(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "MOB-1", parent.Identifier)
	assert.Equal(t, "feat/mob-1", parent.GitBranchName)
}

func TestLinearFetchSubtasksWithRelations(t *testing.T) {
	l := newTestLinear(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"issues": map[string]any{
					"nodes": []map[string]any{
						{
							"id": "a", "identifier": "MOB-2", "title": "Child",
							"state": map[string]any{"name": "In Progress"},
							"inverseRelations": map[string]any{
								"nodes": []map[string]any{
									{"type": "blocks", "issue": map[string]any{"id": "b", "identifier": "MOB-3"}},
								},
							},
						},
					},
				},
			},
		})
	})

	subs, err := l.FetchSubtasks(context.Background(), ParentInfo{ID: "p1"})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "MOB-2", subs[0].Identifier)
	assert.Equal(t, "In Progress", subs[0].Status)
	assert.Equal(t, []string{"b"}, subs[0].BlockedBy)
}

func TestLinearGraphQLErrorSurfaces(t *testing.T) {
	l := newTestLinear(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "boom"}},
		})
	})

	_, err := l.FetchParent(context.Background(), "abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGraphQL)
}

func TestLinearAuthFailed(t *testing.T) {
	l := newTestLinear(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := l.FetchParent(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestLinearUpdateStatusSuccess(t *testing.T) {
	l := newTestLinear(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"issueUpdate": map[string]any{"success": true}},
		})
	})
	assert.NoError(t, l.UpdateStatus(context.Background(), "abc", "state-id"))
}
