package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityhall/meetingpipe/internal/queue"
)

func TestPool_ProcessesJobsAndCompletesThem(t *testing.T) {
	q := queue.NewMemoryQueue("download", queue.DefaultRedisQueueOptions())
	ctx := context.Background()
	ok, err := q.Enqueue(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)

	var processed int32
	runCtx, cancel := context.WithCancel(ctx)

	p := &Pool{
		Queue:       q,
		Concurrency: 1,
		DequeueWait: 20 * time.Millisecond,
		Handle: func(_ context.Context, job *queue.JobRecord) error {
			atomic.AddInt32(&processed, 1)
			cancel()
			return nil
		},
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(runCtx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not shut down in time")
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&processed))

	jobID := "download-m1"
	rec, err := q.Get(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, queue.Completed, rec.State)
}

func TestPool_FailedHandlerMarksJobFailed(t *testing.T) {
	q := queue.NewMemoryQueue("download", queue.RedisQueueOptions{MaxRetries: 1, RetryBase: time.Millisecond, CompletedCap: 10, FailedCap: 10})
	ctx := context.Background()
	_, err := q.Enqueue(ctx, "m1")
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	p := &Pool{
		Queue:       q,
		Concurrency: 1,
		DequeueWait: 20 * time.Millisecond,
		Handle: func(_ context.Context, job *queue.JobRecord) error {
			cancel()
			return errors.New("boom")
		},
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(runCtx) }()
	<-done

	rec, err := q.Get(ctx, "download-m1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, queue.Failed, rec.State)
}

func TestPool_HandlerPanicIsRecoveredAndFailsJob(t *testing.T) {
	q := queue.NewMemoryQueue("download", queue.RedisQueueOptions{MaxRetries: 1, RetryBase: time.Millisecond, CompletedCap: 10, FailedCap: 10})
	ctx := context.Background()
	_, err := q.Enqueue(ctx, "m1")
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	p := &Pool{
		Queue:       q,
		Concurrency: 1,
		DequeueWait: 20 * time.Millisecond,
		Handle: func(_ context.Context, job *queue.JobRecord) error {
			defer cancel()
			panic("handler exploded")
		},
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(runCtx) }()
	<-done

	rec, err := q.Get(ctx, "download-m1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, queue.Failed, rec.State)
}
