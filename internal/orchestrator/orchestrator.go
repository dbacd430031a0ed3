// Package orchestrator implements the workflow state machine: Advance,
// Fail, and Restart. It contains no I/O beyond the state store and the
// job queues it is given.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/cityhall/meetingpipe/internal/metrics"
	"github.com/cityhall/meetingpipe/internal/model"
	"github.com/cityhall/meetingpipe/internal/queue"
	"github.com/cityhall/meetingpipe/internal/store"
)

// Orchestrator encodes the phase transition table and drives the state
// store and queues in a fixed order: the store update is written first,
// the next job enqueued second. A crash between the two leaves the
// meeting one phase ahead of its queue with no job to pick it back up;
// that's accepted as the favored failure mode since workers are
// idempotent and Reconcile sweeps up the gap.
type Orchestrator struct {
	store  store.Store
	queues map[string]queue.Queue
}

// New builds an Orchestrator over the given store and the named queues it
// will enqueue into (keys are queue names: "download", "extract",
// "upload", "diarize").
func New(s store.Store, queues map[string]queue.Queue) *Orchestrator {
	return &Orchestrator{store: s, queues: queues}
}

// Advance records a meeting's transition out of fromPhase, applying patch,
// then enqueues the next phase's job. If fromPhase is terminal, both
// steps are skipped and Advance returns nil.
func (o *Orchestrator) Advance(ctx context.Context, meetingID string, fromPhase model.Phase, patch model.FieldPatch) error {
	transition, ok := model.TransitionFrom(fromPhase)
	if !ok {
		return nil // terminal phase: nothing to advance
	}

	if err := o.store.UpdateMeeting(ctx, meetingID, transition.To, patch); err != nil {
		return fmt.Errorf("advance %s from %s: %w", meetingID, fromPhase, err)
	}
	metrics.PhaseTransitions.WithLabelValues(string(fromPhase), string(transition.To)).Inc()

	nextQueueName, ok := model.QueueForPhase(transition.To)
	if !ok {
		return nil // advanced into a terminal phase: no next job
	}
	nextQueue, ok := o.queues[nextQueueName]
	if !ok {
		return fmt.Errorf("advance %s: no queue registered for %q", meetingID, nextQueueName)
	}
	if _, err := nextQueue.Enqueue(ctx, meetingID); err != nil {
		return fmt.Errorf("advance %s: enqueue %s: %w", meetingID, nextQueueName, err)
	}
	return nil
}

// Fail marks a meeting FAILED, recording the error and the phase at which
// it occurred so an operator can restart from there.
func (o *Orchestrator) Fail(ctx context.Context, meetingID string, atPhase model.Phase, errorMessage string) error {
	phase := atPhase
	patch := model.FieldPatch{
		ErrorMessage:  &errorMessage,
		FailedAtPhase: &phase,
	}
	if err := o.store.UpdateMeeting(ctx, meetingID, model.Failed, patch); err != nil {
		return fmt.Errorf("fail %s at %s: %w", meetingID, atPhase, err)
	}
	return nil
}

// Restart resets a meeting to fromPhase and enqueues the corresponding
// queue's job. Used only by operator tooling (cmd/pipelinectl).
func (o *Orchestrator) Restart(ctx context.Context, meetingID string, fromPhase model.Phase) error {
	if !fromPhase.Valid() {
		return fmt.Errorf("restart %s: invalid phase %q", meetingID, fromPhase)
	}

	if err := o.store.UpdateMeeting(ctx, meetingID, fromPhase, model.FieldPatch{}); err != nil {
		return fmt.Errorf("restart %s to %s: %w", meetingID, fromPhase, err)
	}

	queueName, ok := model.QueueForPhase(fromPhase)
	if !ok {
		return nil // DIARIZED/FAILED restart just resets phase, nothing to (re-)enqueue
	}
	q, ok := o.queues[queueName]
	if !ok {
		return fmt.Errorf("restart %s: no queue registered for %q", meetingID, queueName)
	}
	if _, err := q.Enqueue(ctx, meetingID); err != nil {
		return fmt.Errorf("restart %s: enqueue %s: %w", meetingID, queueName, err)
	}
	return nil
}

// Reconcile sweeps up the non-atomic advance+enqueue window: for every
// non-terminal meeting, if its current phase's queue has no job for it
// in {waiting,active,delayed}, enqueue one. It is an operator tool
// (cmd/pipelinectl reconcile), not part of the core transition path.
func (o *Orchestrator) Reconcile(ctx context.Context) (int, error) {
	enqueuedCount := 0
	for _, phase := range []model.Phase{model.Discovered, model.Downloaded, model.Extracted, model.Uploaded} {
		queueName, ok := model.QueueForPhase(phase)
		if !ok {
			continue
		}
		q, ok := o.queues[queueName]
		if !ok {
			return enqueuedCount, fmt.Errorf("reconcile: no queue registered for %q", queueName)
		}

		meetings, err := o.store.GetByPhase(ctx, phase)
		if err != nil {
			return enqueuedCount, fmt.Errorf("reconcile: get by phase %s: %w", phase, err)
		}
		for _, m := range meetings {
			jobID := model.JobID(queueName, m.ID)
			existing, err := q.Get(ctx, jobID)
			if err != nil {
				return enqueuedCount, fmt.Errorf("reconcile: get job %s: %w", jobID, err)
			}
			if existing != nil && (existing.State == queue.Waiting || existing.State == queue.Active || existing.State == queue.Delayed) {
				continue // already pending
			}
			enqueued, err := q.Enqueue(ctx, m.ID)
			if err != nil {
				return enqueuedCount, fmt.Errorf("reconcile: enqueue %s: %w", m.ID, err)
			}
			if enqueued {
				enqueuedCount++
			}
		}
	}
	return enqueuedCount, nil
}
