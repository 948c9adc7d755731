package identity

import (
	"fmt"

	"github.com/da-x/spectree/pkg/spec"
)

// ComputeAllBuildHashes computes BuildHash for every source in tree, via a
// memoized DFS: each node's hash depends only on its dependencies' hashes,
// so dependencies are always resolved before their dependents. Only a
// source's direct declared dependencies feed its own BuildHash — the
// transitive closure (package resolve) is used for dep-repo assembly, not
// for hashing. Grounded on original_source/src/main.rs's
// compute_build_hash_recursive.
func ComputeAllBuildHashes(tree *spec.SpecTree, sourceHashes map[spec.SourceKey]string) (map[spec.SourceKey]string, error) {
	buildHashes := map[spec.SourceKey]string{}
	onStack := map[spec.SourceKey]bool{}

	var compute func(key spec.SourceKey) (string, error)
	compute = func(key spec.SourceKey) (string, error) {
		if h, ok := buildHashes[key]; ok {
			return h, nil
		}
		if onStack[key] {
			return "", fmt.Errorf("circular dependency detected while computing build hash for %q", key)
		}
		onStack[key] = true
		defer delete(onStack, key)

		src, ok := tree.Sources[key]
		if !ok {
			return "", fmt.Errorf("source %q not found in spec tree", key)
		}

		var deps []DepHash
		for _, dep := range src.ParsedDependencies() {
			depHash, err := compute(dep.Key)
			if err != nil {
				return "", err
			}
			deps = append(deps, DepHash{Key: dep.Key, Hash: depHash})
		}

		sourceHash, ok := sourceHashes[key]
		if !ok {
			return "", fmt.Errorf("source hash not found for source %q", key)
		}

		h := ComputeBuildHash(key, sourceHash, deps, src.Params)
		buildHashes[key] = h
		return h, nil
	}

	for _, key := range tree.SortedKeys() {
		if _, err := compute(key); err != nil {
			return nil, err
		}
	}
	return buildHashes, nil
}
