package pool

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerExecutesInSubmissionOrder(t *testing.T) {
	r := newRunner(slog.Default())
	defer r.stop()

	var order []int
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, r.submit(ctx, func() {
			order = append(order, i)
		}))
	}

	// submit waits for completion, so order is already final.
	for i, got := range order {
		assert.Equal(t, i, got)
	}
}

func TestRunnerSubmitAfterStop(t *testing.T) {
	r := newRunner(slog.Default())
	r.stop()

	err := r.submit(context.Background(), func() {
		t.Error("job must not run after stop")
	})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestRunnerStopIsIdempotent(t *testing.T) {
	r := newRunner(slog.Default())
	r.stop()
	r.stop()
}

func TestRunnerSubmitHonorsContextWhileQueued(t *testing.T) {
	r := newRunner(slog.Default())
	defer r.stop()

	// Occupy the worker so the next submit cannot be enqueued.
	blocker := make(chan struct{})
	running := make(chan struct{})
	go func() {
		_ = r.submit(context.Background(), func() {
			close(running)
			<-blocker
		})
	}()
	<-running

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := r.submit(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(blocker)
}
