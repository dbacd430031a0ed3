// Package artifact implements the content-addressed artifact store: a
// pure path-derivation function plus Local and Remote Store
// implementations that are transparent to callers.
package artifact

import (
	"context"
	"fmt"

	"github.com/cityhall/meetingpipe/internal/model"
)

// Store is the uniform abstraction over local or remote artifact access.
type Store interface {
	PathFor(kind model.ArtifactKind, meetingID string) string
	URLFor(kind model.ArtifactKind, meetingID string) string
	ReadInto(ctx context.Context, kind model.ArtifactKind, meetingID, localPath string) error
	WriteFrom(ctx context.Context, localPath string, kind model.ArtifactKind, meetingID string) error
	Exists(ctx context.Context, kind model.ArtifactKind, meetingID string) (bool, error)
	SizeOf(ctx context.Context, kind model.ArtifactKind, meetingID string) (int64, error)
}

// PathFor is the pure, exhaustive function deriving the canonical
// relative path for (kind, meetingId). It is shared by the Local store,
// the Remote store's client-side URL builder, and the file server's
// upload handler, so all three agree on layout by construction.
func PathFor(kind model.ArtifactKind, meetingID string) (string, error) {
	id := model.SanitizeID(meetingID)
	switch kind {
	case model.RawVideo:
		return fmt.Sprintf("raw/videos/%s.mp4", id), nil
	case model.RawAgenda:
		return fmt.Sprintf("raw/agendas/%s_agenda.html", id), nil
	case model.DerivedAudio:
		return fmt.Sprintf("derived/audio/%s.m4a", id), nil
	case model.DerivedChapters:
		return fmt.Sprintf("derived/chapters/%s_chapters.txt", id), nil
	case model.DerivedMetadata:
		return fmt.Sprintf("derived/metadata/%s_metadata.json", id), nil
	case model.DerivedDiarized:
		return fmt.Sprintf("derived/diarized/%s_diarized.json", id), nil
	default:
		return "", fmt.Errorf("artifact: no canonical path for kind %q", kind)
	}
}

// MustPathFor panics on an invalid kind; reserved for call sites where
// kind has already been validated (e.g. iterating model.AllArtifactKinds).
func MustPathFor(kind model.ArtifactKind, meetingID string) string {
	p, err := PathFor(kind, meetingID)
	if err != nil {
		panic(err)
	}
	return p
}
