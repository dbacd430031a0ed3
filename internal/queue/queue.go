// Package queue implements the per-phase job queue: waiting, active,
// delayed, completed, and failed states, deterministic dedup
// identifiers, and exponential retry/backoff.
package queue

import (
	"context"
	"time"
)

// State is one of the five job lifecycle states the operator CLI
// reports on.
type State string

const (
	Waiting   State = "waiting"
	Active    State = "active"
	Delayed   State = "delayed"
	Completed State = "completed"
	Failed    State = "failed"
)

// JobRecord is the full view of one queued job, as returned to operator
// tooling.
type JobRecord struct {
	ID        string
	Queue     string
	MeetingID string
	State     State
	Attempts  int
	LastError string
	EnqueuedAt time.Time
	UpdatedAt  time.Time
	ReadyAt    time.Time // only meaningful while State == Delayed
}

// Queue is a single named queue (one per workflow phase). Implementations
// must guarantee at most one job per identifier across
// {waiting,active,delayed}.
type Queue interface {
	// Enqueue adds a job for meetingID with identifier "<queue>-<meetingId>".
	// A no-op (returns false, nil) if that identifier already exists in
	// {waiting,active,delayed}.
	Enqueue(ctx context.Context, meetingID string) (enqueued bool, err error)

	// Dequeue blocks up to timeout for a job, moving it to Active on
	// success. Returns (nil, nil) on a timeout with no job available.
	Dequeue(ctx context.Context, timeout time.Duration) (*JobRecord, error)

	// Complete moves an active job to Completed.
	Complete(ctx context.Context, jobID string) error

	// Fail moves an active job toward retry (Delayed, scored by
	// exponential backoff) or, once attempts are exhausted, to Failed.
	Fail(ctx context.Context, jobID string, cause error) error

	// List returns up to limit jobs in the given state, newest first.
	List(ctx context.Context, state State, limit int) ([]JobRecord, error)
	// Get returns the job with the given identifier, in any state.
	Get(ctx context.Context, jobID string) (*JobRecord, error)
	// Retry moves a Failed job back to Waiting, resetting its attempt
	// counter.
	Retry(ctx context.Context, jobID string) error
	// Remove deletes a job outright, regardless of state.
	Remove(ctx context.Context, jobID string) error
	// Clean removes jobs in state older than maxAge (zero means any age).
	Clean(ctx context.Context, state State, maxAge time.Duration) (removed int, err error)

	// Name is the workflow phase queue name, e.g. "download".
	Name() string
}
