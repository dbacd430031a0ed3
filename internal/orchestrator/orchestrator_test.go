package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityhall/meetingpipe/internal/model"
	"github.com/cityhall/meetingpipe/internal/queue"
	"github.com/cityhall/meetingpipe/internal/store"
)

func newHarness() (*Orchestrator, store.Store, map[string]queue.Queue) {
	s := store.NewMemoryStore()
	queues := map[string]queue.Queue{
		model.QueueDownload: queue.NewMemoryQueue(model.QueueDownload, queue.DefaultRedisQueueOptions()),
		model.QueueExtract:  queue.NewMemoryQueue(model.QueueExtract, queue.DefaultRedisQueueOptions()),
		model.QueueUpload:   queue.NewMemoryQueue(model.QueueUpload, queue.DefaultRedisQueueOptions()),
		model.QueueDiarize:  queue.NewMemoryQueue(model.QueueDiarize, queue.DefaultRedisQueueOptions()),
	}
	return New(s, queues), s, queues
}

func TestAdvance_FullHappyPath(t *testing.T) {
	o, s, queues := newHarness()
	ctx := context.Background()

	_, err := s.InsertIfAbsent(ctx, model.Meeting{ID: "m1", Title: "City Commission - Regular", Phase: model.Discovered})
	require.NoError(t, err)
	_, err = queues[model.QueueDownload].Enqueue(ctx, "m1")
	require.NoError(t, err)

	steps := []model.Phase{model.Discovered, model.Downloaded, model.Extracted, model.Uploaded}
	for _, from := range steps {
		require.NoError(t, o.Advance(ctx, "m1", from, model.FieldPatch{}))
	}

	m, err := s.GetMeeting(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Diarized, m.Phase)

	for queueName, wantCount := range map[string]int{
		model.QueueExtract: 1,
		model.QueueUpload:  1,
		model.QueueDiarize: 1,
	} {
		jobs, err := queues[queueName].List(ctx, queue.Waiting, 10)
		require.NoError(t, err)
		assert.Len(t, jobs, wantCount, "queue %s", queueName)
	}
}

func TestAdvance_TerminalPhaseIsNoOp(t *testing.T) {
	o, s, _ := newHarness()
	ctx := context.Background()
	_, err := s.InsertIfAbsent(ctx, model.Meeting{ID: "m1", Phase: model.Diarized})
	require.NoError(t, err)

	require.NoError(t, o.Advance(ctx, "m1", model.Diarized, model.FieldPatch{}))

	m, err := s.GetMeeting(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Diarized, m.Phase)
}

func TestAdvance_DedupOnDoubleCall(t *testing.T) {
	o, s, queues := newHarness()
	ctx := context.Background()
	_, err := s.InsertIfAbsent(ctx, model.Meeting{ID: "m1", Phase: model.Discovered})
	require.NoError(t, err)

	require.NoError(t, o.Advance(ctx, "m1", model.Discovered, model.FieldPatch{}))
	require.NoError(t, o.Advance(ctx, "m1", model.Discovered, model.FieldPatch{}))

	jobs, err := queues[model.QueueExtract].List(ctx, queue.Waiting, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "advancing twice from the same (meetingId, fromPhase) enqueues exactly one job")
}

func TestFail_RecordsPhaseAndError(t *testing.T) {
	o, s, _ := newHarness()
	ctx := context.Background()
	_, err := s.InsertIfAbsent(ctx, model.Meeting{ID: "m1", Phase: model.Uploaded})
	require.NoError(t, err)

	require.NoError(t, o.Fail(ctx, "m1", model.Uploaded, "audio missing at diarize"))

	m, err := s.GetMeeting(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Failed, m.Phase)
	assert.Equal(t, model.Uploaded, m.FailedAtPhase)
	assert.Equal(t, "audio missing at diarize", m.ErrorMessage)
}

func TestRestart_ResetsPhaseAndEnqueues(t *testing.T) {
	o, s, queues := newHarness()
	ctx := context.Background()
	_, err := s.InsertIfAbsent(ctx, model.Meeting{ID: "m1", Phase: model.Failed})
	require.NoError(t, err)

	require.NoError(t, o.Restart(ctx, "m1", model.Extracted))

	m, err := s.GetMeeting(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Extracted, m.Phase)

	jobs, err := queues[model.QueueUpload].List(ctx, queue.Waiting, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestReconcile_EnqueuesMissingJobsOnly(t *testing.T) {
	o, s, queues := newHarness()
	ctx := context.Background()

	_, err := s.InsertIfAbsent(ctx, model.Meeting{ID: "has-job", Phase: model.Discovered})
	require.NoError(t, err)
	_, err = queues[model.QueueDownload].Enqueue(ctx, "has-job")
	require.NoError(t, err)

	_, err = s.InsertIfAbsent(ctx, model.Meeting{ID: "missing-job", Phase: model.Discovered})
	require.NoError(t, err)

	count, err := o.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	jobs, err := queues[model.QueueDownload].List(ctx, queue.Waiting, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}
