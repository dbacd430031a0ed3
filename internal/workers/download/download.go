// Package download implements the download phase worker: expects
// DISCOVERED, invokes the external downloader, writes RAW_VIDEO.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cityhall/meetingpipe/internal/artifact"
	"github.com/cityhall/meetingpipe/internal/downloader"
	"github.com/cityhall/meetingpipe/internal/model"
	"github.com/cityhall/meetingpipe/internal/orchestrator"
	"github.com/cityhall/meetingpipe/internal/queue"
	"github.com/cityhall/meetingpipe/internal/store"
	"github.com/cityhall/meetingpipe/internal/werr"
)

// Worker produces RAW_VIDEO for meetings in DISCOVERED.
type Worker struct {
	Store        store.Store
	Artifacts    artifact.Store
	Downloader   downloader.Downloader
	Orchestrator *orchestrator.Orchestrator
	ScratchRoot  string
	Logger       *slog.Logger
}

// Handle implements worker.Handler.
func (w *Worker) Handle(ctx context.Context, job *queue.JobRecord) error {
	meeting, err := w.Store.GetMeeting(ctx, job.MeetingID)
	if err != nil {
		if err == store.ErrNotFound {
			return w.fail(ctx, job.MeetingID, werr.Newf(werr.Precondition, "meeting %s not found", job.MeetingID))
		}
		return werr.New(werr.Transient, err)
	}
	if meeting.Phase != model.Discovered {
		return w.fail(ctx, job.MeetingID, werr.Newf(werr.Precondition,
			"download worker expected phase %s, found %s", model.Discovered, meeting.Phase).WithPhase(string(model.Discovered)))
	}

	scratch, err := os.CreateTemp(w.ScratchRoot, fmt.Sprintf("download_%s_*.mp4", model.SanitizeID(meeting.ID)))
	if err != nil {
		return werr.New(werr.Transient, fmt.Errorf("create scratch file: %w", err))
	}
	scratchPath := scratch.Name()
	_ = scratch.Close()
	defer os.Remove(scratchPath)

	if err := w.Downloader.Download(ctx, meeting.URL, scratchPath); err != nil {
		return err
	}

	if err := w.Artifacts.WriteFrom(ctx, scratchPath, model.RawVideo, meeting.ID); err != nil {
		return werr.New(werr.Transient, fmt.Errorf("write raw video artifact: %w", err))
	}

	rawVideoPath := w.Artifacts.PathFor(model.RawVideo, meeting.ID)
	if w.Logger != nil {
		w.Logger.Info("downloaded video", "meeting_id", meeting.ID, "step", "download", "queue", model.QueueDownload)
	}

	return w.Orchestrator.Advance(ctx, meeting.ID, model.Discovered, model.FieldPatch{
		RawVideoPath: &rawVideoPath,
	})
}

func (w *Worker) fail(ctx context.Context, meetingID string, cause *werr.Error) error {
	if err := w.Orchestrator.Fail(ctx, meetingID, model.Discovered, cause.Error()); err != nil && w.Logger != nil {
		w.Logger.Error("failed to record orchestrator failure", "meeting_id", meetingID, "error", err)
	}
	return cause
}
