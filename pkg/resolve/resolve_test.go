package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/da-x/spectree/pkg/spec"
)

func gitSource(deps ...string) *spec.Source {
	return &spec.Source{Kind: spec.KindGit, Git: &spec.GitSource{URL: "u"}, Dependencies: deps}
}

func TestFindAllDependencyPairs(t *testing.T) {
	tree := &spec.SpecTree{Sources: map[spec.SourceKey]*spec.Source{
		"app":  gitSource("lib", "~tool"),
		"lib":  gitSource("base"),
		"tool": gitSource(),
		"base": gitSource(),
	}}

	pairs, err := FindAllDependencyPairs(tree, []spec.SourceKey{"app"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []Pair{
		{Parent: "app", Dep: "lib"},
		{Parent: "app", Dep: "tool"},
		{Parent: "lib", Dep: "base"},
	}, pairs)
}

func TestFindAllDependencyPairs_Cycle(t *testing.T) {
	tree := &spec.SpecTree{Sources: map[spec.SourceKey]*spec.Source{
		"a": gitSource("b"),
		"b": gitSource("a"),
	}}

	_, err := FindAllDependencyPairs(tree, []spec.SourceKey{"a"})
	require.Error(t, err)
	var cyc *CyclicDependencyError
	assert.ErrorAs(t, err, &cyc)
}

func TestResolveDependencies_OnlyDirectIsPrunedBeyondRoot(t *testing.T) {
	// app ~> tool (OnlyDirect): tool and its own deps must not be pulled in
	// when resolving from a deeper root (top), but must be when app is the
	// root.
	tree := &spec.SpecTree{Sources: map[spec.SourceKey]*spec.Source{
		"top":           gitSource("app"),
		"app":           gitSource("lib", "~tool"),
		"lib":           gitSource(),
		"tool":          gitSource("tool-internal"),
		"tool-internal": gitSource(),
	}}

	set, err := ResolveDependencies(tree, "app")
	require.NoError(t, err)
	assert.True(t, set["lib"])
	assert.True(t, set["tool"])
	assert.True(t, set["tool-internal"], "a regular dep of a depth-1 OnlyDirect dependency must appear")
	assert.False(t, set["app"])

	set, err = ResolveDependencies(tree, "top")
	require.NoError(t, err)
	assert.True(t, set["app"])
	assert.True(t, set["lib"])
	assert.False(t, set["tool"], "OnlyDirect edge below the root must not be traversed")
	assert.False(t, set["tool-internal"], "OnlyDirect dependency's own transitive deps must not appear")
}

func TestResolveDependencies_UnknownSource(t *testing.T) {
	tree := &spec.SpecTree{Sources: map[spec.SourceKey]*spec.Source{
		"app": gitSource("missing"),
	}}
	_, err := ResolveDependencies(tree, "app")
	assert.Error(t, err)
}
