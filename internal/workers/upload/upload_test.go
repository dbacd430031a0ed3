package upload

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityhall/meetingpipe/internal/artifact"
	"github.com/cityhall/meetingpipe/internal/model"
	"github.com/cityhall/meetingpipe/internal/orchestrator"
	"github.com/cityhall/meetingpipe/internal/playlist"
	"github.com/cityhall/meetingpipe/internal/queue"
	"github.com/cityhall/meetingpipe/internal/store"
	"github.com/cityhall/meetingpipe/internal/videohost"
)

type stubVideoHost struct {
	gotRequest videohost.UploadRequest
	result     videohost.UploadResult
	err        error
}

func (s *stubVideoHost) Upload(_ context.Context, req videohost.UploadRequest) (videohost.UploadResult, error) {
	s.gotRequest = req
	if s.err != nil {
		return videohost.UploadResult{}, s.err
	}
	return s.result, nil
}

func newHarness(t *testing.T, host videohost.Client) (*Worker, *store.MemoryStore, queue.Queue) {
	t.Helper()

	root := t.TempDir()
	artifacts := artifact.NewLocalStore(root)

	videoPath := t.TempDir() + "/raw.mp4"
	require.NoError(t, os.WriteFile(videoPath, []byte("fake video"), 0o644))
	require.NoError(t, artifacts.WriteFrom(context.Background(), videoPath, model.RawVideo, "m1"))

	st := store.NewMemoryStore()
	chaptersBlob := "City Commission - Regular - 2025-06-05\n\nChapters:\n00:00:00 Pre-meeting\n"
	_, err := st.InsertIfAbsent(context.Background(), model.Meeting{
		ID: "m1", Title: "General Policy Committee - Work Session", Date: "2025-06-05 19:00", Phase: model.Extracted,
	})
	require.NoError(t, err)
	require.NoError(t, st.UpdateMeeting(context.Background(), "m1", model.Extracted, model.FieldPatch{ChaptersBlob: &chaptersBlob}))

	uploadQueue := queue.NewMemoryQueue(model.QueueUpload, queue.DefaultRedisQueueOptions())
	diarizeQueue := queue.NewMemoryQueue(model.QueueDiarize, queue.DefaultRedisQueueOptions())
	orch := orchestrator.New(st, map[string]queue.Queue{
		model.QueueUpload:  uploadQueue,
		model.QueueDiarize: diarizeQueue,
	})

	mappings, err := playlist.Compile([][2]string{
		{"^City Commission", "P1"},
		{"^General Policy Committee", "P2"},
	})
	require.NoError(t, err)

	w := &Worker{
		Store:            st,
		Artifacts:        artifacts,
		VideoHost:        host,
		PlaylistMappings: mappings,
		PlaylistConfig:   map[string]string{"P1": "P1", "P2": "P2"},
		LocationTag:      "Downtown",
		Orchestrator:     orch,
		ScratchRoot:      t.TempDir(),
	}
	return w, st, diarizeQueue
}

func TestHandle_HappyPathPublishesAndAdvances(t *testing.T) {
	host := &stubVideoHost{result: videohost.UploadResult{URL: "https://videohost.example/v/abc"}}
	w, st, diarizeQueue := newHarness(t, host)

	job := &queue.JobRecord{MeetingID: "m1"}
	err := w.Handle(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, []string{"P2"}, host.gotRequest.Playlists)
	assert.Equal(t, "General Policy Committee - Work Session - 2025-06-05 | Downtown", host.gotRequest.Title)

	meeting, err := st.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Uploaded, meeting.Phase)
	assert.Equal(t, "https://videohost.example/v/abc", meeting.PublishedURL)

	jobs, err := diarizeQueue.List(context.Background(), queue.Waiting, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestHandle_UnsetPlaylistEnvYieldsNoPlaylists(t *testing.T) {
	host := &stubVideoHost{result: videohost.UploadResult{URL: "https://videohost.example/v/abc"}}
	w, _, _ := newHarness(t, host)
	w.PlaylistConfig = map[string]string{"P1": "P1"}

	job := &queue.JobRecord{MeetingID: "m1"}
	err := w.Handle(context.Background(), job)
	require.NoError(t, err)
	assert.Empty(t, host.gotRequest.Playlists)
}

func TestHandle_WrongPhaseFailsJob(t *testing.T) {
	host := &stubVideoHost{}
	w, st, _ := newHarness(t, host)
	require.NoError(t, st.UpdateMeeting(context.Background(), "m1", model.Downloaded, model.FieldPatch{}))

	job := &queue.JobRecord{MeetingID: "m1"}
	err := w.Handle(context.Background(), job)
	require.Error(t, err)

	meeting, err := st.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Failed, meeting.Phase)
}
