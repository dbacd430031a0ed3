package model

import (
	"regexp"
	"time"
)

// Meeting is the central entity of the pipeline: one scheduled public body
// session, identified by the externally assigned opaque ID.
type Meeting struct {
	ID     string
	Title  string
	Date   string // as received from the calendar, e.g. "2025-06-05 19:00"
	URL    string // source agenda/meeting page URL
	Phase  Phase

	RawVideoPath       string
	DerivedChaptersPath string
	DerivedMetadataPath string
	DerivedAudioPath    string
	DerivedDiarizedPath string
	PublishedURL        string

	ErrorMessage  string
	FailedAtPhase Phase

	// AgendaBlob and ChaptersBlob hold the raw artifact payloads produced
	// by the extract worker; the state store persists them alongside the
	// path fields so operators can inspect a failure without touching the
	// artifact store.
	AgendaBlob   string
	ChaptersBlob string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FieldPatch is a partial update applied atomically with a phase change.
// Nil fields are left untouched by store implementations; a non-nil
// field is written, even when it points at an empty value.
type FieldPatch struct {
	RawVideoPath        *string
	DerivedChaptersPath *string
	DerivedMetadataPath *string
	DerivedAudioPath    *string
	DerivedDiarizedPath *string
	PublishedURL        *string
	ErrorMessage        *string
	FailedAtPhase       *Phase
	AgendaBlob          *string
	ChaptersBlob        *string
}

var idSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// SanitizeID is a total function mapping any meeting ID to the character
// class the artifact store's paths are built from: ^[A-Za-z0-9_]+$.
// Disallowed runs collapse to a single underscore so distinct unsafe IDs
// still produce distinct sanitized outputs in the common case.
func SanitizeID(id string) string {
	sanitized := idSanitizer.ReplaceAllString(id, "_")
	if sanitized == "" {
		return "_"
	}
	return sanitized
}
