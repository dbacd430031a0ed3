package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityhall/meetingpipe/internal/calendar"
	"github.com/cityhall/meetingpipe/internal/model"
	"github.com/cityhall/meetingpipe/internal/queue"
	"github.com/cityhall/meetingpipe/internal/store"
)

type fakeCalendar struct {
	meetings []calendar.Meeting
	err      error
	calls    int
}

func (f *fakeCalendar) GetCalendarMeetings(_ context.Context, _, _ time.Time) ([]calendar.Meeting, error) {
	f.calls++
	return f.meetings, f.err
}

func newHarness(meetings []calendar.Meeting) (*Discovery, *fakeCalendar, *store.MemoryStore, *queue.MemoryQueue) {
	cal := &fakeCalendar{meetings: meetings}
	st := store.NewMemoryStore()
	dq := queue.NewMemoryQueue(model.QueueDownload, queue.DefaultRedisQueueOptions())
	d := &Discovery{Calendar: cal, Store: st, DownloadQueue: dq, UTCOffset: "-04:00"}
	return d, cal, st, dq
}

func TestRun_InsertsOnlyMeetingsWithVideoAndEnqueuesDownload(t *testing.T) {
	d, _, st, dq := newHarness([]calendar.Meeting{
		{ID: "12345", Name: "City Commission", StartDate: "2025-06-05 19:00", HasVideo: true},
		{ID: "12346", Name: "Planning Board", StartDate: "2025-06-06 10:00", HasVideo: false},
	})

	result, err := d.Run(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Enqueued)

	m, err := st.GetMeeting(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, model.Discovered, m.Phase)

	_, err = st.GetMeeting(context.Background(), "12346")
	assert.ErrorIs(t, err, store.ErrNotFound)

	job, err := dq.Get(context.Background(), model.JobID(model.QueueDownload, "12345"))
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, queue.Waiting, job.State)
}

func TestRun_IdempotentOnSecondRun(t *testing.T) {
	meetings := []calendar.Meeting{
		{ID: "12345", Name: "City Commission", StartDate: "2025-06-05 19:00", HasVideo: true},
	}
	d, _, st, dq := newHarness(meetings)

	_, err := d.Run(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)

	result, err := d.Run(context.Background(), time.Now(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 0, result.Enqueued)

	meetingsInPhase, err := st.GetByPhase(context.Background(), model.Discovered)
	require.NoError(t, err)
	assert.Len(t, meetingsInPhase, 1)

	jobs, err := dq.List(context.Background(), queue.Waiting, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestRunLocked_SecondCallFailsWhileFirstHoldsLock(t *testing.T) {
	d, _, st, _ := newHarness(nil)

	release, ok, err := st.TryAdvisoryLock(context.Background(), "discovery")
	require.NoError(t, err)
	require.True(t, ok)
	defer release(context.Background())

	_, err = d.RunLocked(context.Background(), time.Now(), time.Now())
	assert.Error(t, err)
}

func TestDefaultRange_SpansCalendarMonth(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)
	start, end, err := DefaultRange(now, "-04:00")
	require.NoError(t, err)

	assert.Equal(t, 2025, start.Year())
	assert.Equal(t, time.June, start.Month())
	assert.Equal(t, 1, start.Day())
	assert.Equal(t, 0, start.Hour())

	assert.Equal(t, time.July, end.Month())
	assert.Equal(t, 1, end.Day())
}

func TestFixedZone_RejectsMalformedOffset(t *testing.T) {
	_, err := FixedZone("bogus")
	assert.Error(t, err)

	_, err = FixedZone("-04:00")
	assert.NoError(t, err)
}
