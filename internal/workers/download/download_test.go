package download

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityhall/meetingpipe/internal/artifact"
	"github.com/cityhall/meetingpipe/internal/downloader"
	"github.com/cityhall/meetingpipe/internal/model"
	"github.com/cityhall/meetingpipe/internal/orchestrator"
	"github.com/cityhall/meetingpipe/internal/queue"
	"github.com/cityhall/meetingpipe/internal/store"
)

type stubDownloader struct {
	contents []byte
	err      error
}

func (s stubDownloader) Download(_ context.Context, _, destPath string) error {
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(destPath, s.contents, 0o644)
}

func newHarness(t *testing.T, dl downloader.Downloader) (*Worker, *store.MemoryStore, queue.Queue) {
	t.Helper()

	root := t.TempDir()
	artifacts := artifact.NewLocalStore(root)

	st := store.NewMemoryStore()
	_, err := st.InsertIfAbsent(context.Background(), model.Meeting{
		ID: "m1", Title: "City Commission - Regular", Date: "2025-06-05 19:00",
		URL: "https://agendas.example/video.mp4", Phase: model.Discovered,
	})
	require.NoError(t, err)

	downloadQueue := queue.NewMemoryQueue(model.QueueDownload, queue.DefaultRedisQueueOptions())
	extractQueue := queue.NewMemoryQueue(model.QueueExtract, queue.DefaultRedisQueueOptions())
	orch := orchestrator.New(st, map[string]queue.Queue{
		model.QueueDownload: downloadQueue,
		model.QueueExtract:  extractQueue,
	})

	w := &Worker{
		Store:        st,
		Artifacts:    artifacts,
		Downloader:   dl,
		Orchestrator: orch,
		ScratchRoot:  t.TempDir(),
	}
	return w, st, extractQueue
}

func TestHandle_HappyPathWritesArtifactAndAdvances(t *testing.T) {
	w, st, extractQueue := newHarness(t, stubDownloader{contents: []byte("fake meeting video")})

	job := &queue.JobRecord{MeetingID: "m1"}
	err := w.Handle(context.Background(), job)
	require.NoError(t, err)

	meeting, err := st.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Downloaded, meeting.Phase)
	assert.NotEmpty(t, meeting.RawVideoPath)

	exists, err := w.Artifacts.Exists(context.Background(), model.RawVideo, "m1")
	require.NoError(t, err)
	assert.True(t, exists)

	jobs, err := extractQueue.List(context.Background(), queue.Waiting, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestHandle_WrongPhaseFailsJob(t *testing.T) {
	w, st, _ := newHarness(t, stubDownloader{contents: []byte("fake meeting video")})
	require.NoError(t, st.UpdateMeeting(context.Background(), "m1", model.Downloaded, model.FieldPatch{}))

	job := &queue.JobRecord{MeetingID: "m1"}
	err := w.Handle(context.Background(), job)
	require.Error(t, err)

	meeting, err := st.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Failed, meeting.Phase)
	assert.Equal(t, model.Discovered, meeting.FailedAtPhase)
}

func TestHandle_DownloaderFailureFailsJobViaQueueRetry(t *testing.T) {
	w, st, extractQueue := newHarness(t, stubDownloader{err: errors.New("download tool: exit status 1")})

	job := &queue.JobRecord{MeetingID: "m1"}
	err := w.Handle(context.Background(), job)
	require.Error(t, err)

	meeting, err := st.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Discovered, meeting.Phase, "a transient downloader failure must not itself mark the meeting FAILED")

	jobs, err := extractQueue.List(context.Background(), queue.Waiting, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs, "no extract job should be enqueued when download never advances the meeting")
}
