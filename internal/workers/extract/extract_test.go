package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityhall/meetingpipe/internal/artifact"
	"github.com/cityhall/meetingpipe/internal/model"
	"github.com/cityhall/meetingpipe/internal/orchestrator"
	"github.com/cityhall/meetingpipe/internal/queue"
	"github.com/cityhall/meetingpipe/internal/store"
)

const agendaHTML = `
<html><body>
<script>
var data = {
Bookmarks: [
  {"AgendaItemId": 1, "TimeStart": 5000, "TimeEnd": 60000},
  {"AgendaItemId": 2, "TimeStart": 65000, "TimeEnd": 3665000}
];
</script>
<DIV class="AgendaItem AgendaItem1">
  <DIV class="AgendaItemTitle"><a href="#">Item A</a></DIV>
</DIV>
<DIV class="AgendaItem AgendaItem2">
  <DIV class="AgendaItemTitle"><a href="#">Item B</a></DIV>
</DIV>
</body></html>
`

type stubAudioExtractor struct{ err error }

func (s stubAudioExtractor) ExtractAudio(_ context.Context, _, audioPath string) error {
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(audioPath, []byte("fake audio"), 0o644)
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

func newHarness(t *testing.T, audio AudioExtractor) (*Worker, *store.MemoryStore, queue.Queue) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(agendaHTML))
	}))
	t.Cleanup(server.Close)

	root := t.TempDir()
	artifacts := artifact.NewLocalStore(root)

	st := store.NewMemoryStore()
	_, err := st.InsertIfAbsent(context.Background(), model.Meeting{
		ID: "m1", Title: "City Commission - Regular", Date: "2025-06-05 19:00", Phase: model.Downloaded,
	})
	require.NoError(t, err)

	extractQueue := queue.NewMemoryQueue(model.QueueExtract, queue.DefaultRedisQueueOptions())
	uploadQueue := queue.NewMemoryQueue(model.QueueUpload, queue.DefaultRedisQueueOptions())
	orch := orchestrator.New(st, map[string]queue.Queue{
		model.QueueExtract: extractQueue,
		model.QueueUpload:  uploadQueue,
	})

	w := &Worker{
		Store:         st,
		Artifacts:     artifacts,
		HTTPClient:    server.Client(),
		AgendaBaseURL: server.URL,
		AudioTool:     audio,
		Orchestrator:  orch,
		ScratchRoot:   t.TempDir(),
	}
	return w, st, uploadQueue
}

func TestHandle_HappyPathAdvancesAndWritesArtifacts(t *testing.T) {
	w, st, uploadQueue := newHarness(t, stubAudioExtractor{})
	seedRawVideo(t, w)

	job := &queue.JobRecord{MeetingID: "m1"}
	err := w.Handle(context.Background(), job)
	require.NoError(t, err)

	meeting, err := st.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Extracted, meeting.Phase)
	assert.Contains(t, meeting.ChaptersBlob, "00:00:00 Pre-meeting")
	assert.NotEmpty(t, meeting.DerivedChaptersPath)
	assert.NotEmpty(t, meeting.DerivedMetadataPath)
	assert.NotEmpty(t, meeting.DerivedAudioPath)

	jobs, err := uploadQueue.List(context.Background(), queue.Waiting, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestHandle_AudioExtractionFailureStillAdvances(t *testing.T) {
	w, st, _ := newHarness(t, stubAudioExtractor{err: staticErr("audio tool exploded")})
	seedRawVideo(t, w)

	job := &queue.JobRecord{MeetingID: "m1"}
	err := w.Handle(context.Background(), job)
	require.NoError(t, err)

	meeting, err := st.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Extracted, meeting.Phase)
	assert.Empty(t, meeting.DerivedAudioPath)
}

func seedRawVideo(t *testing.T, w *Worker) {
	t.Helper()
	src := t.TempDir() + "/raw.mp4"
	require.NoError(t, os.WriteFile(src, []byte("fake video bytes"), 0o644))
	require.NoError(t, w.Artifacts.WriteFrom(context.Background(), src, model.RawVideo, "m1"))
}

func TestHandle_WrongPhaseFailsJob(t *testing.T) {
	w, st, _ := newHarness(t, stubAudioExtractor{})
	require.NoError(t, st.UpdateMeeting(context.Background(), "m1", model.Discovered, model.FieldPatch{}))

	job := &queue.JobRecord{MeetingID: "m1"}
	err := w.Handle(context.Background(), job)
	require.Error(t, err)

	meeting, err := st.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, model.Failed, meeting.Phase)
	assert.Equal(t, model.Downloaded, meeting.FailedAtPhase)
}
