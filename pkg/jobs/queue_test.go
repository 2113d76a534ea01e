package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var handled int32
	done := make(chan struct{}, 3)
	q := NewQueue("notifications", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&handled, 1)
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(Job{Type: "swap.requested"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&handled))
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&attempts, 1) < 2 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{MaxRetries: 2, RetryDelay: 10 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{Type: "swap.completed"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{}))
	require.Error(t, q.TryEnqueue(Job{}))
}

func TestTryEnqueueReportsFullBuffer(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("full", func(ctx context.Context, job Job) error {
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()
	defer close(block)

	require.NoError(t, q.Enqueue(Job{}))
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.TryEnqueue(Job{}))
	err := q.TryEnqueue(Job{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueueFull))
}
