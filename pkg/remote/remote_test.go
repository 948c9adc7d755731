package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/da-x/spectree/pkg/runner"
)

func TestExtractCoprBuildID(t *testing.T) {
	id, err := extractCoprBuildID("Submitting...\nCreated builds: 123456\nDone\n")
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), id)
}

func TestExtractCoprBuildID_MissingLine(t *testing.T) {
	_, err := extractCoprBuildID("no relevant output\n")
	assert.Error(t, err)
}

func TestExtractCoprBuildID_UnparsableID(t *testing.T) {
	_, err := extractCoprBuildID("Created builds: not-a-number\n")
	assert.Error(t, err)
}

func TestParseCoprStatus(t *testing.T) {
	assert.Equal(t, "succeeded", parseCoprStatus("  Succeeded  \n"))
	assert.Equal(t, "running", parseCoprStatus("\nrunning\nextra\n"))
	assert.Equal(t, "", parseCoprStatus("\n\n"))
}

// statusSequenceRunner returns each of statuses in turn on successive
// Run calls, simulating `copr status` transitioning toward a terminal
// state across polls.
type statusSequenceRunner struct {
	statuses []string
	calls    int
}

func (r *statusSequenceRunner) Run(ctx context.Context, s runner.Spec) (runner.Result, error) {
	i := r.calls
	if i >= len(r.statuses) {
		i = len(r.statuses) - 1
	}
	r.calls++
	return runner.Result{Stdout: r.statuses[i]}, nil
}

func TestWaitByPolling_ReturnsOnSuccess(t *testing.T) {
	r := &statusSequenceRunner{statuses: []string{"pending", "running", "succeeded"}}
	c := &Coordinator{Runner: r, PollMode: true, PollLimiter: rate.NewLimiter(rate.Inf, 1)}

	require.NoError(t, c.waitByPolling(context.Background(), 42))
	assert.Equal(t, 3, r.calls)
}

func TestWaitByPolling_ReturnsErrorOnFailure(t *testing.T) {
	r := &statusSequenceRunner{statuses: []string{"running", "failed"}}
	c := &Coordinator{Runner: r, PollMode: true, PollLimiter: rate.NewLimiter(rate.Inf, 1)}

	err := c.waitByPolling(context.Background(), 42)
	assert.Error(t, err)
}

func TestWaitByPolling_RequiresLimiter(t *testing.T) {
	c := &Coordinator{PollMode: true}
	err := c.waitByPolling(context.Background(), 42)
	assert.Error(t, err)
}
