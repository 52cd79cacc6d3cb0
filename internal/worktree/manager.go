// Package worktree manages one git worktree per task so parallel agents
// never collide on the same working directory.
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mobius/internal/git"
)

// Manager creates, resumes, and cleans up per-task git worktrees rooted
// under a sibling "<repo>-worktrees" directory, delegating the actual git
// plumbing to a git.Client.
type Manager struct {
	// RepoDir is the working directory of the primary checkout that owns
	// the worktrees (where `git worktree add` is invoked from).
	RepoDir string

	// Remote is the remote consulted for existing branches and merge
	// detection; "origin" when empty.
	Remote string

	// ConfigDirs are runtime-config directories (".claude", ".opencode")
	// symlinked from the source repo into each worktree when present.
	ConfigDirs []string

	git *git.Client
}

// NewManager returns a Manager bound to the given repository directory.
func NewManager(repoDir string) *Manager {
	return &Manager{
		RepoDir:    repoDir,
		Remote:     "origin",
		ConfigDirs: []string{".claude", ".opencode"},
		git:        git.NewClient(),
	}
}

// Handle describes one task's worktree.
type Handle struct {
	TaskID     string
	BranchName string
	Path       string
	// Resumed is set when the worktree directory already existed and was
	// reused rather than created.
	Resumed bool
}

// CommonDir returns the repository's git common directory (the shared
// .git directory even when called from inside a linked worktree), used to
// root the worktrees directory independent of the caller's cwd.
func (m *Manager) CommonDir(ctx context.Context) (string, error) {
	return m.git.CommonDir(ctx, m.RepoDir)
}

// WorktreesRoot returns "<main-repo-parent>/<repo>-worktrees". The main
// repository root is derived from the git common dir, not the cwd, so
// a loop started from inside another worktree never nests its worktrees.
func (m *Manager) WorktreesRoot(ctx context.Context) (string, error) {
	commonDir, err := m.CommonDir(ctx)
	if err != nil {
		return "", err
	}
	mainRoot := filepath.Dir(commonDir)
	return filepath.Join(filepath.Dir(mainRoot), m.repoName(ctx, mainRoot)+"-worktrees"), nil
}

// repoName derives the repository's name from the remote URL, falling back
// to the main root's directory name.
func (m *Manager) repoName(ctx context.Context, mainRoot string) string {
	if url := m.git.RemoteURL(ctx, m.RepoDir, m.remote()); url != "" {
		name := strings.TrimSuffix(filepath.Base(url), ".git")
		if name != "" && name != "." && name != "/" {
			return name
		}
	}
	return filepath.Base(mainRoot)
}

func (m *Manager) remote() string {
	if m.Remote != "" {
		return m.Remote
	}
	return "origin"
}

// BranchName derives the branch name for a task, preferring the name a
// tracker integration recorded on it; falls back to "mobius/<taskID>".
func BranchName(taskID, recorded string) string {
	if recorded != "" {
		return recorded
	}
	return "mobius/" + taskID
}

// Create adds a worktree for a task. If the worktree path already exists
// it is resumed as-is (config symlinks re-checked). If the branch exists
// locally or on the remote, the worktree attaches to it; otherwise a new
// branch is cut from baseBranch (auto-detected when empty, failing with
// configuration guidance if detection comes up empty).
func (m *Manager) Create(ctx context.Context, taskID, branchName, baseBranch string) (*Handle, error) {
	root, err := m.WorktreesRoot(ctx)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(root, taskID)

	if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
		m.linkConfigDirs(path)
		return &Handle{TaskID: taskID, BranchName: branchName, Path: path, Resumed: true}, nil
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create worktrees root: %w", err)
	}

	localExists, _ := m.git.LocalBranchExists(m.RepoDir, branchName)
	if !localExists {
		if remoteExists, _ := m.git.RemoteBranchExists(ctx, m.RepoDir, m.remote(), branchName); remoteExists {
			if err := m.git.Fetch(ctx, m.RepoDir, m.remote(), branchName+":"+branchName); err != nil {
				return nil, fmt.Errorf("fetch remote branch %s: %w", branchName, err)
			}
			localExists = true
		}
	}

	if localExists {
		if err := m.git.WorktreeAdd(ctx, m.RepoDir, path, branchName, "", false); err != nil {
			return nil, fmt.Errorf("create worktree for %s: %w", taskID, err)
		}
	} else {
		base := baseBranch
		if base == "" {
			base, err = m.git.DefaultBaseBranch(ctx, m.RepoDir, m.remote())
			if err != nil {
				return nil, err
			}
		}
		if exists, _ := m.git.LocalBranchExists(m.RepoDir, base); !exists {
			return nil, fmt.Errorf("base branch %q not found: set base_branch in mobius.yaml or MOBIUS_BASE_BRANCH", base)
		}
		if err := m.git.WorktreeAdd(ctx, m.RepoDir, path, branchName, base, true); err != nil {
			return nil, fmt.Errorf("create worktree for %s: %w", taskID, err)
		}
	}

	m.linkConfigDirs(path)
	return &Handle{TaskID: taskID, BranchName: branchName, Path: path}, nil
}

// linkConfigDirs symlinks the source repo's runtime-config directories into
// the worktree when they exist there and are missing here, so agents see
// the same skills and settings as the primary checkout.
func (m *Manager) linkConfigDirs(worktreePath string) {
	for _, dir := range m.ConfigDirs {
		src := filepath.Join(m.RepoDir, dir)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := filepath.Join(worktreePath, dir)
		if _, err := os.Lstat(dst); err == nil {
			continue
		}
		_ = os.Symlink(src, dst)
	}
}

// Remove deletes a task's worktree directory and deregisters it from git,
// optionally also deleting the local branch.
func (m *Manager) Remove(ctx context.Context, h *Handle, deleteBranch bool) error {
	if err := m.git.WorktreeRemove(ctx, m.RepoDir, h.Path, true); err != nil {
		// The directory may already be gone; prune stale metadata and move on.
		_ = m.git.WorktreePrune(ctx, m.RepoDir)
	}
	if deleteBranch {
		_ = m.git.DeleteLocalBranch(m.RepoDir, h.BranchName)
	}
	return nil
}

// List returns the worktrees git currently knows about for this repo.
func (m *Manager) List(ctx context.Context) ([]Handle, error) {
	out, err := m.git.WorktreeList(ctx, m.RepoDir)
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}
	return parseWorktreeList(out), nil
}

func parseWorktreeList(out string) []Handle {
	var handles []Handle
	var cur Handle
	flush := func() {
		if cur.Path != "" {
			handles = append(handles, cur)
		}
		cur = Handle{}
	}
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			cur.BranchName = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	flush()
	return handles
}

// Prune removes stale worktree metadata for directories deleted outside
// of git.
func (m *Manager) Prune(ctx context.Context) error {
	return m.git.WorktreePrune(ctx, m.RepoDir)
}

// IsMerged reports whether a task's branch has been merged into
// baseBranch. Both the remote-branch-deleted check and the
// identifier-in-base-log check always run, regardless of what the other
// finds — a provider's "delete branch on merge" option and a squash merge
// that references the issue identifier in its commit message are
// independent signals, and neither implies the other.
func (m *Manager) IsMerged(ctx context.Context, branchName, identifier, baseBranch string) (bool, error) {
	stillOnRemote, _ := m.git.LsRemoteHeads(ctx, m.RepoDir, m.remote(), branchName)
	remoteGone := !stillOnRemote

	loggedInBase, _ := m.git.LogGrep(ctx, m.RepoDir, baseBranch, identifier)

	return remoteGone || loggedInBase, nil
}
