package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/da-x/spectree/pkg/spec"
)

func gitSrc(deps ...string) *spec.Source {
	return &spec.Source{Kind: spec.KindGit, Git: &spec.GitSource{URL: "u"}, Dependencies: deps}
}

// orderRecorder is a concurrency-safe log of task completions, used to
// assert that a dependent never starts before its dependency finishes.
type orderRecorder struct {
	mu   sync.Mutex
	done map[spec.SourceKey]bool
}

func newOrderRecorder() *orderRecorder {
	return &orderRecorder{done: map[spec.SourceKey]bool{}}
}

func (r *orderRecorder) markStartAfter(t *testing.T, key spec.SourceKey, deps []spec.SourceKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range deps {
		assert.True(t, r.done[d], "%s started before its dependency %s finished", key, d)
	}
}

func (r *orderRecorder) markDone(key spec.SourceKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done[key] = true
}

func TestScheduler_RespectsDependencyOrder(t *testing.T) {
	tree := &spec.SpecTree{Sources: map[spec.SourceKey]*spec.Source{
		"app":  gitSrc("lib"),
		"lib":  gitSrc("base"),
		"base": gitSrc(),
	}}

	rec := newOrderRecorder()
	declaredDeps := map[spec.SourceKey][]spec.SourceKey{
		"app": {"lib"},
		"lib": {"base"},
	}

	sched := &Scheduler{
		Tree:  tree,
		Roots: []spec.SourceKey{"app"},
		Task: func(ctx context.Context, key spec.SourceKey) error {
			rec.markStartAfter(t, key, declaredDeps[key])
			time.Sleep(time.Millisecond)
			rec.markDone(key)
			return nil
		},
	}

	require.NoError(t, sched.Run(context.Background()))
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.True(t, rec.done["app"])
	assert.True(t, rec.done["lib"])
	assert.True(t, rec.done["base"])
}

func TestScheduler_FailureFailsTheRun(t *testing.T) {
	tree := &spec.SpecTree{Sources: map[spec.SourceKey]*spec.Source{
		"app": gitSrc("lib"),
		"lib": gitSrc(),
	}}

	sched := &Scheduler{
		Tree:  tree,
		Roots: []spec.SourceKey{"app"},
		Task: func(ctx context.Context, key spec.SourceKey) error {
			if key == "lib" {
				return fmt.Errorf("boom")
			}
			return nil
		},
	}

	err := sched.Run(context.Background())
	assert.Error(t, err)
}

// TestScheduler_IndependentBranchNotCancelledByUnrelatedFailure guards
// against the scheduler deriving a shared cancellation context from
// errgroup.WithContext: a failure in one root's subtree must not cancel
// the ctx passed into a task running in a completely independent root's
// subtree, since the base spec only requires fail-fast propagation to
// true dependents via the channel protocol, not cross-branch ctx
// cancellation.
func TestScheduler_IndependentBranchNotCancelledByUnrelatedFailure(t *testing.T) {
	tree := &spec.SpecTree{Sources: map[spec.SourceKey]*spec.Source{
		"failing": gitSrc(),
		"slow":    gitSrc(),
	}}

	var mu sync.Mutex
	var slowSawCancellation bool
	slowStarted := make(chan struct{})

	sched := &Scheduler{
		Tree:  tree,
		Roots: []spec.SourceKey{"failing", "slow"},
		Task: func(ctx context.Context, key spec.SourceKey) error {
			switch key {
			case "failing":
				<-slowStarted
				return fmt.Errorf("boom")
			case "slow":
				close(slowStarted)
				select {
				case <-time.After(100 * time.Millisecond):
				case <-ctx.Done():
					mu.Lock()
					slowSawCancellation = true
					mu.Unlock()
				}
			}
			return nil
		},
	}

	err := sched.Run(context.Background())
	assert.Error(t, err, "the independent failing root should still fail the run")

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, slowSawCancellation, "an unrelated root's task context must not be cancelled by a sibling root's failure")
}

func TestScheduler_SingleLeafRoot(t *testing.T) {
	tree := &spec.SpecTree{Sources: map[spec.SourceKey]*spec.Source{
		"only": gitSrc(),
	}}

	var ran bool
	var mu sync.Mutex
	sched := &Scheduler{
		Tree:  tree,
		Roots: []spec.SourceKey{"only"},
		Task: func(ctx context.Context, key spec.SourceKey) error {
			mu.Lock()
			ran = true
			mu.Unlock()
			return nil
		},
	}

	require.NoError(t, sched.Run(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, ran)
}
