// Package worker implements the shared phase-worker skeleton: a bounded
// pool of goroutines dequeuing from one queue, running a phase-specific
// handler per job, and observing graceful shutdown with a drain
// deadline.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cityhall/meetingpipe/internal/metrics"
	"github.com/cityhall/meetingpipe/internal/queue"
)

// Handler performs one job's phase-specific work. A non-nil error causes
// the pool to call queue.Fail with the error; nil causes queue.Complete.
type Handler func(ctx context.Context, job *queue.JobRecord) error

// Pool runs Concurrency goroutines pulling from Queue, each independently
// looping dequeue -> Handler -> Complete/Fail. It never interprets the
// job payload itself — that is the Handler's job.
type Pool struct {
	Queue         queue.Queue
	Concurrency   int
	DequeueWait   time.Duration
	DrainDeadline time.Duration
	Logger        *slog.Logger
	Handle        Handler
}

// Run blocks until ctx is cancelled, then stops dequeuing new jobs and
// waits up to DrainDeadline for in-flight jobs to finish before
// returning. It always returns nil: the loop goroutines never report an
// error, and a Handler panic is recovered and recorded as a job failure.
func (p *Pool) Run(ctx context.Context) error {
	concurrency := p.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	wait := p.DequeueWait
	if wait <= 0 {
		wait = 5 * time.Second
	}

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			p.loop(gCtx, ctx, wait)
			return nil
		})
	}
	return g.Wait()
}

// loop runs until shutdownCtx is cancelled. dequeueCtx is the same
// context; a separate parameter keeps the drain semantics explicit: once
// cancelled, the loop stops calling Dequeue but an in-flight job (already
// past that call) still gets to finish under its own bounded deadline.
func (p *Pool) loop(dequeueCtx, shutdownCtx context.Context, wait time.Duration) {
	for {
		select {
		case <-shutdownCtx.Done():
			return
		default:
		}

		job, err := p.Queue.Dequeue(dequeueCtx, wait)
		if err != nil {
			if p.Logger != nil {
				p.Logger.Error("dequeue failed", "queue", p.Queue.Name(), "error", err)
			}
			continue
		}
		if job == nil {
			continue
		}

		p.runJob(shutdownCtx, job)
	}
}

func (p *Pool) runJob(ctx context.Context, job *queue.JobRecord) {
	jobCtx := ctx
	if p.DrainDeadline > 0 {
		// Shutdown does not cut the job short: once ctx is cancelled the
		// job has DrainDeadline more to finish before jobCtx is cancelled.
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithCancel(context.Background())
		defer cancel()
		stop := context.AfterFunc(ctx, func() {
			time.AfterFunc(p.DrainDeadline, cancel)
		})
		defer stop()
	}

	var handlerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				handlerErr = errFromPanic(r)
			}
		}()
		handlerErr = p.Handle(jobCtx, job)
	}()

	if handlerErr != nil {
		if p.Logger != nil {
			p.Logger.Error("job failed", "queue", p.Queue.Name(), "meeting_id", job.MeetingID, "error", handlerErr)
		}
		metrics.JobsProcessed.WithLabelValues(p.Queue.Name(), "failed").Inc()
		if err := p.Queue.Fail(context.Background(), job.ID, handlerErr); err != nil && p.Logger != nil {
			p.Logger.Error("failed to record job failure", "queue", p.Queue.Name(), "job_id", job.ID, "error", err)
		}
		return
	}

	metrics.JobsProcessed.WithLabelValues(p.Queue.Name(), "completed").Inc()
	if err := p.Queue.Complete(context.Background(), job.ID); err != nil && p.Logger != nil {
		p.Logger.Error("failed to record job completion", "queue", p.Queue.Name(), "job_id", job.ID, "error", err)
	}
}

type panicError struct{ value any }

func (e panicError) Error() string { return fmt.Sprintf("worker panic recovered: %v", e.value) }

func errFromPanic(r any) error { return panicError{value: r} }
