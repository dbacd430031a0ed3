// Package diarize implements the diarize phase worker: expects UPLOADED,
// requires DERIVED_AUDIO to already exist (fails fast with a precondition
// error if it doesn't), runs the external diarizer, and writes
// DERIVED_DIARIZED.
package diarize

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cityhall/meetingpipe/internal/artifact"
	"github.com/cityhall/meetingpipe/internal/diarizer"
	"github.com/cityhall/meetingpipe/internal/model"
	"github.com/cityhall/meetingpipe/internal/orchestrator"
	"github.com/cityhall/meetingpipe/internal/queue"
	"github.com/cityhall/meetingpipe/internal/store"
	"github.com/cityhall/meetingpipe/internal/werr"
)

// Worker produces DERIVED_DIARIZED for meetings in UPLOADED.
type Worker struct {
	Store              store.Store
	Artifacts          artifact.Store
	Diarizer           diarizer.Diarizer
	Orchestrator       *orchestrator.Orchestrator
	ScratchRoot        string
	ScratchWorldWritable bool
	Logger             *slog.Logger
}

func (w *Worker) Handle(ctx context.Context, job *queue.JobRecord) error {
	meeting, err := w.Store.GetMeeting(ctx, job.MeetingID)
	if err != nil {
		if err == store.ErrNotFound {
			return w.fail(ctx, job.MeetingID, werr.Newf(werr.Precondition, "meeting %s not found", job.MeetingID))
		}
		return werr.New(werr.Transient, err)
	}
	if meeting.Phase != model.Uploaded {
		return w.fail(ctx, job.MeetingID, werr.Newf(werr.Precondition,
			"diarize worker expected phase %s, found %s", model.Uploaded, meeting.Phase).WithPhase(string(model.Uploaded)))
	}

	exists, err := w.Artifacts.Exists(ctx, model.DerivedAudio, meeting.ID)
	if err != nil {
		return werr.New(werr.Transient, fmt.Errorf("check derived audio: %w", err))
	}
	if !exists {
		return w.fail(ctx, job.MeetingID, werr.Newf(werr.ArtifactMissing,
			"derived audio artifact absent for %s, diarization cannot proceed", meeting.ID).WithPhase(string(model.Uploaded)))
	}

	scratchDir, err := diarizer.ScratchDir(w.ScratchRoot, model.SanitizeID(meeting.ID), time.Now().UnixMilli(), w.ScratchWorldWritable)
	if err != nil {
		return werr.New(werr.Transient, fmt.Errorf("create diarize scratch dir: %w", err))
	}
	defer diarizer.RemoveScratchDir(scratchDir)

	audioPath := filepath.Join(scratchDir, "audio.m4a")
	if err := w.Artifacts.ReadInto(ctx, model.DerivedAudio, meeting.ID, audioPath); err != nil {
		return w.fail(ctx, job.MeetingID, werr.Newf(werr.ArtifactMissing,
			"read derived audio for %s: %v", meeting.ID, err).WithPhase(string(model.Uploaded)))
	}

	outputPath := filepath.Join(scratchDir, "diarized.json")
	if err := w.Diarizer.Diarize(ctx, audioPath, outputPath); err != nil {
		return err
	}

	if err := w.Artifacts.WriteFrom(ctx, outputPath, model.DerivedDiarized, meeting.ID); err != nil {
		return werr.New(werr.Transient, fmt.Errorf("write diarized artifact: %w", err))
	}

	diarizedPath := w.Artifacts.PathFor(model.DerivedDiarized, meeting.ID)
	if w.Logger != nil {
		w.Logger.Info("diarized meeting", "meeting_id", meeting.ID, "step", "diarize", "queue", model.QueueDiarize)
	}

	return w.Orchestrator.Advance(ctx, meeting.ID, model.Uploaded, model.FieldPatch{
		DerivedDiarizedPath: &diarizedPath,
	})
}

func (w *Worker) fail(ctx context.Context, meetingID string, cause *werr.Error) error {
	if err := w.Orchestrator.Fail(ctx, meetingID, model.Uploaded, cause.Error()); err != nil && w.Logger != nil {
		w.Logger.Error("failed to record orchestrator failure", "meeting_id", meetingID, "error", err)
	}
	return cause
}
