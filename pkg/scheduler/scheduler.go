// Package scheduler implements the concurrent build scheduler: one task
// per reachable source, one single-slot completion channel per declared
// dependency edge, fail-fast propagation, and a wait on the leaf (or
// root) set. Grounded on the base spec's §4.9 and, for the fan-out
// primitive, on the teacher's preference for golang.org/x/sync/errgroup
// over a raw sync.WaitGroup wherever a goroutine group can fail.
package scheduler

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"github.com/da-x/spectree/pkg/resolve"
	"github.com/da-x/spectree/pkg/spec"
)

// TaskFunc is the per-source unit of work: source materialization, SRPM
// generation, dependency-repository assembly, back-end invocation, and
// publish. It runs only after every one of key's direct dependencies has
// signaled success.
type TaskFunc func(ctx context.Context, key spec.SourceKey) error

// Scheduler wires a SpecTree's dependency graph into task goroutines and
// completion channels.
type Scheduler struct {
	Tree  *spec.SpecTree
	Roots []spec.SourceKey
	Task  TaskFunc
}

type edge struct {
	pair resolve.Pair
	ch   chan bool
}

// Run computes the reachable set from Roots, spawns one task per
// reachable source, and blocks until the leaf set (or, if every root is
// itself a leaf, the root set) has reported completion. The first
// observed failure is returned; other in-flight tasks are not awaited.
func (s *Scheduler) Run(ctx context.Context) error {
	log := clog.FromContext(ctx)

	reachable := map[spec.SourceKey]bool{}
	for _, root := range s.Roots {
		set, err := resolve.ResolveDependencies(s.Tree, root)
		if err != nil {
			return fmt.Errorf("resolving dependencies of %s: %w", root, err)
		}
		for k := range set {
			reachable[k] = true
		}
		reachable[root] = true
	}

	pairs, err := resolve.FindAllDependencyPairs(s.Tree, s.Roots)
	if err != nil {
		return fmt.Errorf("finding dependency pairs: %w", err)
	}

	edges := make([]edge, len(pairs))
	receivers := map[spec.SourceKey][]chan bool{} // keyed by edge.pair.Parent: waits on these
	senders := map[spec.SourceKey][]chan bool{}   // keyed by edge.pair.Dep: sends to these
	for i, p := range pairs {
		ch := make(chan bool, 1)
		edges[i] = edge{pair: p, ch: ch}
		receivers[p.Parent] = append(receivers[p.Parent], ch)
		senders[p.Dep] = append(senders[p.Dep], ch)
	}

	// A final channel per reachable source lets Run observe completion
	// regardless of whether anything else depends on that source.
	final := map[spec.SourceKey]chan bool{}
	for key := range reachable {
		final[key] = make(chan bool, 1)
	}

	leaves := leafSet(reachable, pairs)
	waitSet := leaves
	if allRootsAreLeaves(s.Roots, leaves) {
		waitSet = s.Roots
	}

	// A plain errgroup.Group (not errgroup.WithContext) joins the
	// goroutines and captures the first error without deriving a shared
	// cancellation context: per the base spec, a task failure must only
	// fail-fast its own dependents via the channel protocol below, never
	// cancel unrelated, independent branches of the DAG by killing their
	// in-flight subprocesses.
	var g errgroup.Group
	for key := range reachable {
		key := key
		recv := receivers[key]
		send := append([]chan bool{}, senders[key]...)
		send = append(send, final[key])

		g.Go(func() error {
			return runTask(ctx, key, recv, send, s.Task)
		})
	}

	// Errors from stragglers (tasks not in the awaited leaf/root set, or
	// that finish after the run has already returned) are logged but do
	// not block Run's return, per the base spec's "remaining tasks may
	// still complete but their results are not awaited".
	go func() {
		if err := g.Wait(); err != nil {
			log.Warn("background task error after scheduler return", "error", err)
		}
	}()

	return waitFor(ctx, waitSet, final)
}

// runTask implements the per-source task protocol: wait on every
// dependency receiver, invoke fn, then broadcast the outcome to every
// sender (dependents plus this source's own final channel).
func runTask(ctx context.Context, key spec.SourceKey, recv []chan bool, send []chan bool, fn TaskFunc) error {
	log := clog.FromContext(ctx).With("source", key)

	for _, ch := range recv {
		select {
		case ok, open := <-ch:
			if !open || !ok {
				log.Info("dependency failed, aborting")
				broadcast(send, false)
				return fmt.Errorf("dependency of %s failed", key)
			}
		case <-ctx.Done():
			broadcast(send, false)
			return ctx.Err()
		}
	}

	if err := fn(ctx, key); err != nil {
		log.Error("build failed", "error", err)
		broadcast(send, false)
		return fmt.Errorf("building %s: %w", key, err)
	}

	broadcast(send, true)
	return nil
}

func broadcast(chs []chan bool, ok bool) {
	for _, ch := range chs {
		ch <- ok
	}
}

// leafSet returns the sources in reachable that nothing else (within
// reachable) depends on.
func leafSet(reachable map[spec.SourceKey]bool, pairs []resolve.Pair) []spec.SourceKey {
	hasDependent := map[spec.SourceKey]bool{}
	for _, p := range pairs {
		hasDependent[p.Dep] = true
	}
	var leaves []spec.SourceKey
	for key := range reachable {
		if !hasDependent[key] {
			leaves = append(leaves, key)
		}
	}
	return leaves
}

func allRootsAreLeaves(roots []spec.SourceKey, leaves []spec.SourceKey) bool {
	leafSet := map[spec.SourceKey]bool{}
	for _, l := range leaves {
		leafSet[l] = true
	}
	for _, r := range roots {
		if !leafSet[r] {
			return false
		}
	}
	return true
}

func waitFor(ctx context.Context, keys []spec.SourceKey, final map[spec.SourceKey]chan bool) error {
	for _, key := range keys {
		select {
		case ok := <-final[key]:
			if !ok {
				return fmt.Errorf("build of %s failed", key)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
