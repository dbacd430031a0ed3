// Package extract implements the extract phase worker: expects
// DOWNLOADED, fetches and parses the agenda, renders chapters, writes
// metadata, and attempts (best-effort) audio extraction.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cityhall/meetingpipe/internal/agenda"
	"github.com/cityhall/meetingpipe/internal/artifact"
	"github.com/cityhall/meetingpipe/internal/chapters"
	"github.com/cityhall/meetingpipe/internal/model"
	"github.com/cityhall/meetingpipe/internal/orchestrator"
	"github.com/cityhall/meetingpipe/internal/queue"
	"github.com/cityhall/meetingpipe/internal/store"
	"github.com/cityhall/meetingpipe/internal/werr"
)

// AudioExtractor pulls an audio track out of a downloaded video. Its
// failure is a PartialUpstream condition: the extract phase still
// succeeds, but DERIVED_AUDIO stays absent and diarize will fail fast
// with a precondition error later.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, videoPath, audioPath string) error
}

// Metadata is the derived metadata record the extract worker writes
// alongside the chapters.
type Metadata struct {
	MeetingID       string              `json:"meetingId"`
	Title           string              `json:"title"`
	Date            string              `json:"date"`
	Bookmarks       []chapters.Bookmark `json:"bookmarks"`
	ExtractedAt     time.Time           `json:"extractedAt"`
	AudioWarning    string              `json:"audioWarning,omitempty"`
}

// Worker produces DERIVED_CHAPTERS and DERIVED_METADATA (and, best-
// effort, DERIVED_AUDIO) for meetings in DOWNLOADED.
type Worker struct {
	Store        store.Store
	Artifacts    artifact.Store
	HTTPClient   *http.Client
	AgendaBaseURL string
	AudioTool    AudioExtractor
	Orchestrator *orchestrator.Orchestrator
	ScratchRoot  string
	Logger       *slog.Logger
}

func (w *Worker) Handle(ctx context.Context, job *queue.JobRecord) error {
	meeting, err := w.Store.GetMeeting(ctx, job.MeetingID)
	if err != nil {
		if err == store.ErrNotFound {
			return w.fail(ctx, job.MeetingID, werr.Newf(werr.Precondition, "meeting %s not found", job.MeetingID))
		}
		return werr.New(werr.Transient, err)
	}
	if meeting.Phase != model.Downloaded {
		return w.fail(ctx, job.MeetingID, werr.Newf(werr.Precondition,
			"extract worker expected phase %s, found %s", model.Downloaded, meeting.Phase).WithPhase(string(model.Downloaded)))
	}

	page, err := agenda.Fetch(ctx, w.HTTPClient, w.AgendaBaseURL, meeting.ID)
	if err != nil {
		return werr.New(werr.Transient, fmt.Errorf("fetch agenda: %w", err))
	}

	agendaScratch, err := os.CreateTemp(w.ScratchRoot, fmt.Sprintf("agenda_%s_*.html", model.SanitizeID(meeting.ID)))
	if err != nil {
		return werr.New(werr.Transient, fmt.Errorf("create agenda scratch file: %w", err))
	}
	agendaScratchPath := agendaScratch.Name()
	defer os.Remove(agendaScratchPath)
	if _, err := agendaScratch.WriteString(page.HTML); err != nil {
		_ = agendaScratch.Close()
		return werr.New(werr.Transient, fmt.Errorf("write agenda scratch file: %w", err))
	}
	_ = agendaScratch.Close()
	if err := w.Artifacts.WriteFrom(ctx, agendaScratchPath, model.RawAgenda, meeting.ID); err != nil {
		return werr.New(werr.Transient, fmt.Errorf("write raw agenda artifact: %w", err))
	}

	items := chapters.Join(page.Titles, page.Bookmarks)
	rendered := chapters.Render(meeting.Title, meeting.Date, items)

	chaptersScratch, err := os.CreateTemp(w.ScratchRoot, fmt.Sprintf("chapters_%s_*.txt", model.SanitizeID(meeting.ID)))
	if err != nil {
		return werr.New(werr.Transient, fmt.Errorf("create chapters scratch file: %w", err))
	}
	chaptersScratchPath := chaptersScratch.Name()
	defer os.Remove(chaptersScratchPath)
	if _, err := chaptersScratch.WriteString(rendered); err != nil {
		_ = chaptersScratch.Close()
		return werr.New(werr.Transient, fmt.Errorf("write chapters scratch file: %w", err))
	}
	_ = chaptersScratch.Close()
	if err := w.Artifacts.WriteFrom(ctx, chaptersScratchPath, model.DerivedChapters, meeting.ID); err != nil {
		return werr.New(werr.Transient, fmt.Errorf("write chapters artifact: %w", err))
	}

	meta := Metadata{
		MeetingID:   meeting.ID,
		Title:       meeting.Title,
		Date:        meeting.Date,
		Bookmarks:   page.Bookmarks,
		ExtractedAt: time.Now().UTC(),
	}

	audioWarning := w.extractAudioBestEffort(ctx, meeting)
	meta.AudioWarning = audioWarning

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return werr.New(werr.Transient, fmt.Errorf("marshal metadata: %w", err))
	}
	metaScratch, err := os.CreateTemp(w.ScratchRoot, fmt.Sprintf("metadata_%s_*.json", model.SanitizeID(meeting.ID)))
	if err != nil {
		return werr.New(werr.Transient, fmt.Errorf("create metadata scratch file: %w", err))
	}
	metaScratchPath := metaScratch.Name()
	defer os.Remove(metaScratchPath)
	if _, err := metaScratch.Write(metaBytes); err != nil {
		_ = metaScratch.Close()
		return werr.New(werr.Transient, fmt.Errorf("write metadata scratch file: %w", err))
	}
	_ = metaScratch.Close()
	if err := w.Artifacts.WriteFrom(ctx, metaScratchPath, model.DerivedMetadata, meeting.ID); err != nil {
		return werr.New(werr.Transient, fmt.Errorf("write metadata artifact: %w", err))
	}

	chaptersPath := w.Artifacts.PathFor(model.DerivedChapters, meeting.ID)
	metadataPath := w.Artifacts.PathFor(model.DerivedMetadata, meeting.ID)
	patch := model.FieldPatch{
		DerivedChaptersPath: &chaptersPath,
		DerivedMetadataPath: &metadataPath,
		ChaptersBlob:        &rendered,
	}
	if audioWarning != "" && w.Logger != nil {
		w.Logger.Warn("audio extraction failed, continuing without audio", "meeting_id", meeting.ID, "step", "extract", "error", audioWarning)
	} else if audioWarning == "" {
		audioPath := w.Artifacts.PathFor(model.DerivedAudio, meeting.ID)
		if exists, _ := w.Artifacts.Exists(ctx, model.DerivedAudio, meeting.ID); exists {
			patch.DerivedAudioPath = &audioPath
		}
	}

	if w.Logger != nil {
		w.Logger.Info("extracted agenda", "meeting_id", meeting.ID, "step", "extract", "queue", model.QueueExtract)
	}

	return w.Orchestrator.Advance(ctx, meeting.ID, model.Downloaded, patch)
}

// extractAudioBestEffort runs the audio tool against the meeting's raw
// video. Any failure is swallowed and returned as a warning string — a
// PartialUpstream condition that must never fail the phase.
func (w *Worker) extractAudioBestEffort(ctx context.Context, meeting model.Meeting) string {
	if w.AudioTool == nil {
		return ""
	}

	videoScratch, err := os.CreateTemp(w.ScratchRoot, fmt.Sprintf("video_%s_*.mp4", model.SanitizeID(meeting.ID)))
	if err != nil {
		return err.Error()
	}
	videoScratchPath := videoScratch.Name()
	_ = videoScratch.Close()
	defer os.Remove(videoScratchPath)

	if err := w.Artifacts.ReadInto(ctx, model.RawVideo, meeting.ID, videoScratchPath); err != nil {
		return fmt.Sprintf("read raw video for audio extraction: %v", err)
	}

	audioScratch, err := os.CreateTemp(w.ScratchRoot, fmt.Sprintf("audio_%s_*.m4a", model.SanitizeID(meeting.ID)))
	if err != nil {
		return err.Error()
	}
	audioScratchPath := audioScratch.Name()
	_ = audioScratch.Close()
	defer os.Remove(audioScratchPath)

	if err := w.AudioTool.ExtractAudio(ctx, videoScratchPath, audioScratchPath); err != nil {
		return err.Error()
	}

	if err := w.Artifacts.WriteFrom(ctx, audioScratchPath, model.DerivedAudio, meeting.ID); err != nil {
		return fmt.Sprintf("write derived audio artifact: %v", err)
	}
	return ""
}

func (w *Worker) fail(ctx context.Context, meetingID string, cause *werr.Error) error {
	if err := w.Orchestrator.Fail(ctx, meetingID, model.Downloaded, cause.Error()); err != nil && w.Logger != nil {
		w.Logger.Error("failed to record orchestrator failure", "meeting_id", meetingID, "error", err)
	}
	return cause
}
