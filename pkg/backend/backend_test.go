package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNull_Build_Succeeds(t *testing.T) {
	err := Null{}.Build(context.Background(), Request{})
	require.NoError(t, err)
}

func TestNull_Build_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Null{}.Build(ctx, Request{})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 50*time.Millisecond, "cancellation should abort the sleep immediately")
}
