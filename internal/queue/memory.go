package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cityhall/meetingpipe/internal/model"
)

// MemoryQueue is an in-process fake satisfying Queue, used by tests that
// exercise the orchestrator and workers without a live Redis instance. It
// reproduces RedisQueue's dedup and retry semantics; completed and failed
// jobs are kept without RedisQueue's retention caps.
type MemoryQueue struct {
	mu           sync.Mutex
	name         string
	maxRetries   int
	retryBase    time.Duration
	completedCap int
	failedCap    int

	records map[string]*JobRecord
	waiting []string // job IDs, head = next to dequeue
}

func NewMemoryQueue(name string, opts RedisQueueOptions) *MemoryQueue {
	return &MemoryQueue{
		name:         name,
		maxRetries:   opts.MaxRetries,
		retryBase:    opts.RetryBase,
		completedCap: int(opts.CompletedCap),
		failedCap:    int(opts.FailedCap),
		records:      make(map[string]*JobRecord),
	}
}

func (q *MemoryQueue) Name() string { return q.name }

func (q *MemoryQueue) Enqueue(_ context.Context, meetingID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobID := model.JobID(q.name, meetingID)
	if rec, ok := q.records[jobID]; ok {
		switch rec.State {
		case Waiting, Active, Delayed:
			return false, nil
		}
	}

	now := time.Now()
	q.records[jobID] = &JobRecord{
		ID:         jobID,
		Queue:      q.name,
		MeetingID:  meetingID,
		State:      Waiting,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
	q.waiting = append(q.waiting, jobID)
	return true, nil
}

func (q *MemoryQueue) promoteDueLocked() {
	now := time.Now()
	for id, rec := range q.records {
		if rec.State == Delayed && !rec.ReadyAt.After(now) {
			rec.State = Waiting
			rec.UpdatedAt = now
			q.waiting = append(q.waiting, id)
		}
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*JobRecord, error) {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		q.promoteDueLocked()
		if len(q.waiting) > 0 {
			jobID := q.waiting[0]
			q.waiting = q.waiting[1:]
			rec := q.records[jobID]
			rec.State = Active
			rec.UpdatedAt = time.Now()
			out := *rec
			q.mu.Unlock()
			return &out, nil
		}
		q.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (q *MemoryQueue) Complete(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.records[jobID]
	if !ok {
		return nil
	}
	rec.State = Completed
	rec.UpdatedAt = time.Now()
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, jobID string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.records[jobID]
	if !ok {
		return nil
	}
	rec.Attempts++
	if cause != nil {
		rec.LastError = cause.Error()
	}
	now := time.Now()
	rec.UpdatedAt = now

	if q.maxRetries > 0 && rec.Attempts >= q.maxRetries {
		rec.State = Failed
		return nil
	}
	backoff := q.retryBase * time.Duration(1<<uint(rec.Attempts-1))
	rec.State = Delayed
	rec.ReadyAt = now.Add(backoff)
	return nil
}

func (q *MemoryQueue) List(_ context.Context, state State, limit int) ([]JobRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []JobRecord
	for _, rec := range q.records {
		if rec.State == state {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *MemoryQueue) Get(_ context.Context, jobID string) (*JobRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.records[jobID]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (q *MemoryQueue) Retry(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.records[jobID]
	if !ok {
		return nil
	}
	rec.State = Waiting
	rec.Attempts = 0
	rec.LastError = ""
	rec.UpdatedAt = time.Now()
	q.waiting = append(q.waiting, jobID)
	return nil
}

func (q *MemoryQueue) Remove(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.records, jobID)
	for i, id := range q.waiting {
		if id == jobID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			break
		}
	}
	return nil
}

func (q *MemoryQueue) Clean(_ context.Context, state State, maxAge time.Duration) (int, error) {
	q.mu.Lock()
	cutoff := time.Now().Add(-maxAge)
	var toRemove []string
	for id, rec := range q.records {
		if rec.State != state {
			continue
		}
		if maxAge > 0 && rec.UpdatedAt.After(cutoff) {
			continue
		}
		toRemove = append(toRemove, id)
	}
	q.mu.Unlock()

	for _, id := range toRemove {
		_ = q.Remove(context.Background(), id)
	}
	return len(toRemove), nil
}
