// Package vcs implements the VCS Adapter: git operations needed to
// identify and materialize a source. clone/update, cleanliness, and
// revision/tree-hash resolution go through go-git; archive export shells
// out, since go-git has no tar-stream archive primitive matching `git
// archive` byte-for-byte. Grounded on pkg/cli/build.go's
// git.PlainOpenWithOptions usage and on original_source/src/utils.rs's
// export_git_revision for the shelled-out half.
package vcs

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/da-x/spectree/pkg/runner"
)

// Adapter is the VCS Adapter's operation set, as named in the base spec's
// §4.2. Every operation either returns its string result or fails with an
// error whose text embeds the underlying git failure.
type Adapter interface {
	CloneOrUpdate(ctx context.Context, url, dest string) error
	IsClean(ctx context.Context, path string) (bool, error)
	TreeHash(ctx context.Context, path, subpath string) (string, error)
	ResolveRevision(ctx context.Context, path, rev string) (string, error)
	TreeHashAt(ctx context.Context, path, rev, subpath string) (string, error)
	Export(ctx context.Context, path, rev, dest, subpath string) error
}

// GitAdapter is the default Adapter implementation.
type GitAdapter struct {
	// Runner executes the one operation (archive export) that goes
	// through an external process rather than go-git.
	Runner runner.Runner
}

func NewGitAdapter(r runner.Runner) *GitAdapter {
	return &GitAdapter{Runner: r}
}

// CloneOrUpdate is idempotent: clones into dest if it doesn't exist yet,
// otherwise fetches origin and hard-resets the worktree to origin/HEAD.
func (a *GitAdapter) CloneOrUpdate(ctx context.Context, url, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		repo, err := git.PlainOpen(dest)
		if err != nil {
			return fmt.Errorf("opening %s: %w", dest, err)
		}
		if err := repo.FetchContext(ctx, &git.FetchOptions{RemoteName: "origin", Force: true}); err != nil && err != git.NoErrAlreadyUpToDate {
			return fmt.Errorf("fetching %s: %w", dest, err)
		}
		ref, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", "HEAD"), true)
		if err != nil {
			return fmt.Errorf("resolving origin/HEAD in %s: %w", dest, err)
		}
		wt, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("opening worktree %s: %w", dest, err)
		}
		if err := wt.Reset(&git.ResetOptions{Commit: ref.Hash(), Mode: git.HardReset}); err != nil {
			return fmt.Errorf("resetting %s to origin/HEAD: %w", dest, err)
		}
		return nil
	}

	if _, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{URL: url}); err != nil {
		return fmt.Errorf("cloning %s into %s: %w", url, dest, err)
	}
	return nil
}

// IsClean reports whether the worktree at path has no uncommitted changes.
func (a *GitAdapter) IsClean(ctx context.Context, path string) (bool, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", path, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("opening worktree %s: %w", path, err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("git status %s: %w", path, err)
	}
	return status.IsClean(), nil
}

// TreeHash returns the tree hash of HEAD, or of HEAD's subpath if set.
func (a *GitAdapter) TreeHash(ctx context.Context, path, subpath string) (string, error) {
	return a.TreeHashAt(ctx, path, "HEAD", subpath)
}

// ResolveRevision resolves a revision expression (branch, tag, short sha,
// "HEAD", ...) to its full commit sha.
func (a *GitAdapter) ResolveRevision(ctx context.Context, path, rev string) (string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	h, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", fmt.Errorf("resolving revision %s in %s: %w", rev, path, err)
	}
	return h.String(), nil
}

// TreeHashAt returns the tree hash of the given revision, or of the tree
// rooted at subpath within it when subpath is non-empty.
func (a *GitAdapter) TreeHashAt(ctx context.Context, path, rev, subpath string) (string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	h, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", fmt.Errorf("resolving revision %s in %s: %w", rev, path, err)
	}
	commit, err := repo.CommitObject(*h)
	if err != nil {
		return "", fmt.Errorf("reading commit %s in %s: %w", h, path, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", fmt.Errorf("reading tree for %s in %s: %w", h, path, err)
	}
	if subpath == "" {
		return tree.Hash.String(), nil
	}
	entry, err := tree.FindEntry(subpath)
	if err != nil {
		return "", fmt.Errorf("finding subpath %s at %s in %s: %w", subpath, h, path, err)
	}
	return entry.Hash.String(), nil
}

// Export materializes revision rev (optionally scoped to subpath) of the
// repository at path into the directory dest, via `git archive | tar -x`,
// run through the Process Runner rather than go-git: go-git has no
// tar-stream archive primitive compatible with git archive's own format.
func (a *GitAdapter) Export(ctx context.Context, path, rev, dest, subpath string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("creating export dir %s: %w", dest, err)
	}

	archiveArgs := fmt.Sprintf("git archive --format=tar %s", shellQuote(rev))
	if subpath != "" {
		archiveArgs += " " + shellQuote(subpath)
	}
	cmd := fmt.Sprintf("%s | tar -x -C %s", archiveArgs, shellQuote(dest))

	res, err := a.Runner.Run(ctx, runner.Spec{
		Command:    cmd,
		WorkingDir: path,
	})
	if err != nil {
		return fmt.Errorf("exporting %s at %s into %s: %w", path, rev, dest, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("exporting %s at %s into %s: exit %d: %s", path, rev, dest, res.ExitCode, res.Stderr)
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
