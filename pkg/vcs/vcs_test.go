package vcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/da-x/spectree/pkg/runner"
)

// initRepo creates a temp git repository with one committed file, using
// go-git directly (no shelling to the git binary), and returns its path
// plus the commit hash.
func initRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("file.txt")
	require.NoError(t, err)

	sig := &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(0, 0)}
	hash, err := wt.Commit("initial", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	return dir, hash.String()
}

func TestGitAdapter_IsCleanAndTreeHash(t *testing.T) {
	dir, _ := initRepo(t)
	a := NewGitAdapter(runner.NewHost())
	ctx := context.Background()

	clean, err := a.IsClean(ctx, dir)
	require.NoError(t, err)
	assert.True(t, clean)

	h, err := a.TreeHash(ctx, dir, "")
	require.NoError(t, err)
	assert.Len(t, h, 40)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("changed"), 0o644))
	clean, err = a.IsClean(ctx, dir)
	require.NoError(t, err)
	assert.False(t, clean)
}

func TestGitAdapter_ResolveRevisionAndTreeHashAt(t *testing.T) {
	dir, commit := initRepo(t)
	a := NewGitAdapter(runner.NewHost())
	ctx := context.Background()

	rev, err := a.ResolveRevision(ctx, dir, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, commit, rev)

	h1, err := a.TreeHashAt(ctx, dir, "HEAD", "")
	require.NoError(t, err)
	h2, err := a.TreeHashAt(ctx, dir, commit, "")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestGitAdapter_CloneOrUpdate(t *testing.T) {
	src, _ := initRepo(t)
	a := NewGitAdapter(runner.NewHost())
	ctx := context.Background()

	dest := filepath.Join(t.TempDir(), "clone")
	require.NoError(t, a.CloneOrUpdate(ctx, src, dest))

	data, err := os.ReadFile(filepath.Join(dest, "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// A second call should update in place without error, even though
	// nothing changed upstream.
	require.NoError(t, a.CloneOrUpdate(ctx, src, dest))
}
