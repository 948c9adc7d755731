package identity

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/da-x/spectree/pkg/spec"
)

func TestComputeAllBuildHashes_StableAcrossMapIterationOrder(t *testing.T) {
	tree := &spec.SpecTree{Sources: map[spec.SourceKey]*spec.Source{
		"app": {Kind: spec.KindGit, Git: &spec.GitSource{URL: "u"}, Dependencies: []string{"lib", "tool"}},
		"lib": {Kind: spec.KindGit, Git: &spec.GitSource{URL: "u"}},
		"tool": {Kind: spec.KindGit, Git: &spec.GitSource{URL: "u"}, Params: []string{"--with", "x"}},
	}}
	sourceHashes := map[spec.SourceKey]string{"app": "a1", "lib": "b1", "tool": "c1"}

	first, err := ComputeAllBuildHashes(tree, sourceHashes)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := ComputeAllBuildHashes(tree, sourceHashes)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if d := cmp.Diff(first, second, cmpopts.EquateEmpty()); d != "" {
		t.Fatalf("build hashes not deterministic across runs (-first, +second): %s", d)
	}
}
