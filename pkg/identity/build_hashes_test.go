package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/da-x/spectree/pkg/spec"
)

func gitSrc(deps ...string) *spec.Source {
	return &spec.Source{Kind: spec.KindGit, Git: &spec.GitSource{URL: "u"}, Dependencies: deps}
}

func TestComputeAllBuildHashes_DependsOnlyOnDirectDeps(t *testing.T) {
	// app depends directly on lib; lib depends on base. app's own
	// BuildHash must change if lib's *direct* deps change (base's hash
	// flows into lib's hash, which flows into app's), but must NOT change
	// if base changes in a way that leaves lib's hash the same.
	tree := &spec.SpecTree{Sources: map[spec.SourceKey]*spec.Source{
		"app":  gitSrc("lib"),
		"lib":  gitSrc("base"),
		"base": gitSrc(),
	}}
	sourceHashes := map[spec.SourceKey]string{"app": "sa", "lib": "sl", "base": "sb"}

	hashes, err := ComputeAllBuildHashes(tree, sourceHashes)
	require.NoError(t, err)

	appDirect := ComputeBuildHash("app", "sa", []DepHash{{Key: "lib", Hash: hashes["lib"]}}, nil)
	assert.Equal(t, appDirect, hashes["app"])
}

func TestComputeAllBuildHashes_CycleIsAnError(t *testing.T) {
	tree := &spec.SpecTree{Sources: map[spec.SourceKey]*spec.Source{
		"a": gitSrc("b"),
		"b": gitSrc("a"),
	}}
	_, err := ComputeAllBuildHashes(tree, map[spec.SourceKey]string{"a": "x", "b": "y"})
	assert.Error(t, err)
}

func TestComputeAllBuildHashes_MissingSourceHash(t *testing.T) {
	tree := &spec.SpecTree{Sources: map[spec.SourceKey]*spec.Source{
		"a": gitSrc(),
	}}
	_, err := ComputeAllBuildHashes(tree, map[spec.SourceKey]string{})
	assert.Error(t, err)
}
