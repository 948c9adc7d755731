// Package resolve implements dependency-pair discovery and transitive
// dependency-set resolution over a spec.SpecTree. The DFS-with-two-sets
// cycle detection is grounded on pkg/service/dag/dag.go's DetectCycle;
// the BFS transitive-closure walk follows original_source/src/main.rs's
// resolve_dependencies exactly, including the OnlyDirect asymmetry.
package resolve

import (
	"fmt"
	"sort"

	"github.com/da-x/spectree/pkg/spec"
)

// CyclicDependencyError is returned when the reachable subgraph from the
// given roots contains a cycle.
type CyclicDependencyError struct {
	Source string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency involving source %q", e.Source)
}

// Pair is one structural (parent, dependency) edge, as literally declared
// in the spec — independent of the OnlyDirect modifier, since the
// scheduler needs one completion channel per declared edge regardless of
// how resolve_dependencies treats it for transitive-closure purposes.
type Pair struct {
	Parent SourceKey
	Dep    SourceKey
}

type SourceKey = spec.SourceKey

// FindAllDependencyPairs walks every source reachable from roots and
// returns the full list of (parent, dep) edges. Traversal uses a visited
// set (memoization: each node's outgoing edges are only walked once) and a
// recursion-stack set (cycle detection).
func FindAllDependencyPairs(tree *spec.SpecTree, roots []SourceKey) ([]Pair, error) {
	var pairs []Pair
	visited := map[SourceKey]bool{}
	onStack := map[SourceKey]bool{}

	var visit func(key SourceKey) error
	visit = func(key SourceKey) error {
		if onStack[key] {
			return &CyclicDependencyError{Source: key}
		}
		if visited[key] {
			return nil
		}
		onStack[key] = true

		src, ok := tree.Sources[key]
		if !ok {
			return fmt.Errorf("unknown source %q", key)
		}
		for _, dep := range src.ParsedDependencies() {
			pairs = append(pairs, Pair{Parent: key, Dep: dep.Key})
			if err := visit(dep.Key); err != nil {
				return err
			}
		}

		onStack[key] = false
		visited[key] = true
		return nil
	}

	for _, root := range roots {
		if err := visit(root); err != nil {
			return nil, err
		}
	}
	return pairs, nil
}

// ResolveDependencies returns the transitive closure of root's dependencies,
// excluding root itself. An edge marked OnlyDirect is only traversed (and
// its target only included) when its parent is root itself: OnlyDirect
// edges prune deeper levels but are always honored at depth 1.
func ResolveDependencies(tree *spec.SpecTree, root SourceKey) (map[SourceKey]bool, error) {
	result := map[SourceKey]bool{}
	visited := map[SourceKey]bool{root: true}
	queue := []SourceKey{root}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		src, ok := tree.Sources[cur]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", cur)
		}
		for _, dep := range src.ParsedDependencies() {
			if dep.OnlyDirect && cur != root {
				continue
			}
			if visited[dep.Key] {
				continue
			}
			visited[dep.Key] = true
			result[dep.Key] = true
			queue = append(queue, dep.Key)
		}
	}
	return result, nil
}

// SortedPairKeys returns the distinct parent keys appearing in pairs,
// sorted, useful for deterministic task/channel setup in the scheduler.
func SortedPairKeys(pairs []Pair) []SourceKey {
	seen := map[SourceKey]bool{}
	var keys []SourceKey
	for _, p := range pairs {
		if !seen[p.Parent] {
			seen[p.Parent] = true
			keys = append(keys, p.Parent)
		}
	}
	sort.Strings(keys)
	return keys
}
