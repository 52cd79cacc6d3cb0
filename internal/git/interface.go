package git

import "context"

// GitClient is an interface for interacting with Git.
type GitClient interface {
	RepoExists(directory string) bool
	RepoRoot(ctx context.Context, directory string) (string, error)
	CommonDir(ctx context.Context, directory string) (string, error)
	CurrentBranch(ctx context.Context, directory string) (string, error)
	RemoteURL(ctx context.Context, directory, remote string) string
	DefaultBaseBranch(ctx context.Context, directory, remote string) (string, error)

	LocalBranchExists(directory, branch string) (bool, error)
	RemoteBranchExists(ctx context.Context, directory, remote, branch string) (bool, error)
	Fetch(ctx context.Context, directory, remote, branch string) error
	DeleteLocalBranch(directory, branch string) error

	WorktreeAdd(ctx context.Context, directory, path, branch, base string, newBranch bool) error
	WorktreeRemove(ctx context.Context, directory, path string, force bool) error
	WorktreePrune(ctx context.Context, directory string) error
	WorktreeList(ctx context.Context, directory string) (string, error)
	LsRemoteHeads(ctx context.Context, directory, remote, branch string) (bool, error)
	LogGrep(ctx context.Context, directory, ref, pattern string) (bool, error)
}
