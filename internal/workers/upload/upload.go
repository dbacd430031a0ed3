// Package upload implements the upload phase worker: expects EXTRACTED,
// publishes to the external video host, resolves playlists.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cityhall/meetingpipe/internal/artifact"
	"github.com/cityhall/meetingpipe/internal/chapters"
	"github.com/cityhall/meetingpipe/internal/model"
	"github.com/cityhall/meetingpipe/internal/orchestrator"
	"github.com/cityhall/meetingpipe/internal/playlist"
	"github.com/cityhall/meetingpipe/internal/queue"
	"github.com/cityhall/meetingpipe/internal/store"
	"github.com/cityhall/meetingpipe/internal/videohost"
	"github.com/cityhall/meetingpipe/internal/werr"
)

// Worker publishes the uploaded video for meetings in EXTRACTED.
type Worker struct {
	Store            store.Store
	Artifacts        artifact.Store
	VideoHost        videohost.Client
	PlaylistMappings []playlist.Mapping
	PlaylistConfig   map[string]string
	LocationTag      string
	Orchestrator     *orchestrator.Orchestrator
	ScratchRoot      string
	Logger           *slog.Logger
}

func (w *Worker) Handle(ctx context.Context, job *queue.JobRecord) error {
	meeting, err := w.Store.GetMeeting(ctx, job.MeetingID)
	if err != nil {
		if err == store.ErrNotFound {
			return w.fail(ctx, job.MeetingID, werr.Newf(werr.Precondition, "meeting %s not found", job.MeetingID))
		}
		return werr.New(werr.Transient, err)
	}
	if meeting.Phase != model.Extracted {
		return w.fail(ctx, job.MeetingID, werr.Newf(werr.Precondition,
			"upload worker expected phase %s, found %s", model.Extracted, meeting.Phase).WithPhase(string(model.Extracted)))
	}

	videoScratch, err := os.CreateTemp(w.ScratchRoot, fmt.Sprintf("upload_%s_*.mp4", model.SanitizeID(meeting.ID)))
	if err != nil {
		return werr.New(werr.Transient, fmt.Errorf("create scratch file: %w", err))
	}
	videoScratchPath := videoScratch.Name()
	_ = videoScratch.Close()
	defer os.Remove(videoScratchPath)

	if err := w.Artifacts.ReadInto(ctx, model.RawVideo, meeting.ID, videoScratchPath); err != nil {
		return w.fail(ctx, job.MeetingID, werr.New(werr.ArtifactMissing, fmt.Errorf("read raw video for upload: %w", err)).WithPhase(string(model.Extracted)))
	}

	title := fmt.Sprintf("%s - %s | %s", meeting.Title, chapters.FormatDate(meeting.Date), w.LocationTag)
	playlists := playlist.Resolve(meeting.Title, w.PlaylistMappings, w.PlaylistConfig)

	result, err := w.VideoHost.Upload(ctx, videohost.UploadRequest{
		VideoPath:   videoScratchPath,
		Title:       title,
		Description: meeting.ChaptersBlob,
		Tags:        []string{"municipal-meeting"},
		Playlists:   playlists,
	})
	if err != nil {
		return err
	}

	if w.Logger != nil {
		w.Logger.Info("uploaded video", "meeting_id", meeting.ID, "step", "upload", "queue", model.QueueUpload, "playlists", playlists)
	}

	return w.Orchestrator.Advance(ctx, meeting.ID, model.Extracted, model.FieldPatch{
		PublishedURL: &result.URL,
	})
}

func (w *Worker) fail(ctx context.Context, meetingID string, cause *werr.Error) error {
	if err := w.Orchestrator.Fail(ctx, meetingID, model.Extracted, cause.Error()); err != nil && w.Logger != nil {
		w.Logger.Error("failed to record orchestrator failure", "meeting_id", meetingID, "error", err)
	}
	return cause
}
