package backend

import (
	"context"
	"fmt"
	"os"

	"mobius/internal/fsutil"
	"mobius/internal/graph"
	"mobius/internal/layout"
	"mobius/internal/localstore"
)

// Local is the backend.Client implementation for issues that live only in
// the project-local store: no HTTP round-trips, and status, comment, and
// link writes are no-ops that always succeed (the pending queue's
// local-identifier fast path relies on exactly this behavior). CreateIssue
// only allocates the next LOC id from the local counter.
type Local struct {
	GitRoot string
}

// NewLocal returns a Local backend rooted at gitRoot.
func NewLocal(gitRoot string) *Local {
	return &Local{GitRoot: gitRoot}
}

func (l *Local) FetchParent(_ context.Context, id string) (ParentInfo, error) {
	spec, ok := localstore.ReadParentSpec(l.GitRoot, id)
	if !ok {
		return ParentInfo{}, fmt.Errorf("%w: parent %s", ErrNotFound, id)
	}
	return ParentInfo{
		ID:            spec.ID,
		Identifier:    spec.Identifier,
		Title:         spec.Title,
		GitBranchName: spec.GitBranchName,
	}, nil
}

func (l *Local) FetchSubtasks(_ context.Context, parent ParentInfo) ([]graph.RawIssue, error) {
	tasks, err := localstore.ReadSubTasks(l.GitRoot, parent.ID)
	if err != nil {
		return nil, err
	}
	out := make([]graph.RawIssue, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, graph.RawIssue{
			ID:            t.ID,
			Identifier:    t.Identifier,
			Title:         t.Title,
			Status:        t.Status,
			BlockedBy:     t.BlockedByIDs(),
			Blocks:        t.BlocksIDs(),
			GitBranchName: t.GitBranchName,
		})
	}
	return out, nil
}

// FetchStatus scans every known parent's sub-task files for identifier,
// since the local backend has no single index from bare identifier to
// owning parent.
func (l *Local) FetchStatus(_ context.Context, identifier string) (string, error) {
	entries, err := os.ReadDir(layout.IssuesDir(l.GitRoot))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, identifier)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var task localstore.SubTaskContext
		ok, _ := fsutil.ReadJSON(layout.TaskPath(l.GitRoot, e.Name(), identifier), &task)
		if ok {
			return task.Status, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, identifier)
}

func (l *Local) UpdateStatus(_ context.Context, _, _ string) error { return nil }

func (l *Local) AddComment(_ context.Context, _, _ string) (string, error) { return "", nil }

func (l *Local) CreateIssue(_ context.Context, input CreateIssueInput) (CreatedIssue, error) {
	id, err := localstore.NextLocalID(l.GitRoot)
	if err != nil {
		return CreatedIssue{}, err
	}
	return CreatedIssue{ID: id, Identifier: id}, nil
}

func (l *Local) LinkBlocks(_ context.Context, _, _ string) error { return nil }
