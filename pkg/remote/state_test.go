package remote

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStore_SetGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	s := NewStateStore(path)

	_, ok, err := s.Get("app-deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(BuildState{BuildKey: "app-deadbeef", BuildID: 42, Status: StatusSubmitted}))

	bs, ok, err := s.Get("app-deadbeef")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(42), bs.BuildID)
	assert.Equal(t, StatusSubmitted, bs.Status)

	require.NoError(t, s.SetStatus("app-deadbeef", StatusCompleted))
	bs, _, err = s.Get("app-deadbeef")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, bs.Status)
}

func TestStateStore_SetStatus_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	s := NewStateStore(path)
	assert.Error(t, s.SetStatus("missing", StatusCompleted))
}

// Loaded from a second store instance to confirm persistence round-trips
// through YAML on disk, not just in memory.
func TestStateStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, NewStateStore(path).Set(BuildState{BuildKey: "k", BuildID: 7, Status: StatusInProgress}))

	bs, ok, err := NewStateStore(path).Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), bs.BuildID)
}
