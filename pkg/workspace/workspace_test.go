package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/da-x/spectree/pkg/identity"
)

func TestHardlinkCopyDir(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("b"), 0o644))

	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, HardlinkCopyDir(src, dst))

	a, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(a))

	b, err := os.ReadFile(filepath.Join(dst, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(b))
}

func TestHardlinkCopyDir_OverwritesExistingDestination(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "f.txt"), []byte("new"), 0o644))

	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dst, "stale.txt"), []byte("stale"), 0o644))

	require.NoError(t, HardlinkCopyDir(src, dst))

	_, err := os.Stat(filepath.Join(dst, "stale.txt"))
	assert.True(t, os.IsNotExist(err), "stale destination contents must be cleared before copying")

	f, err := os.ReadFile(filepath.Join(dst, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(f))
}

func TestAlreadyBuilt(t *testing.T) {
	root := t.TempDir()
	m := New(root, nil)
	key := identity.BuildKey{SourceKey: "app", Hash: "deadbeef"}

	assert.False(t, m.AlreadyBuilt(key))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "builds", key.String(), "build"), 0o755))
	assert.True(t, m.AlreadyBuilt(key))
}
