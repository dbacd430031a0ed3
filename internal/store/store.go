// Package store defines the durable state store contract and provides a
// PostgreSQL-backed implementation plus an in-memory fake used by tests.
package store

import (
	"context"
	"errors"

	"github.com/cityhall/meetingpipe/internal/model"
)

// ErrNotFound is returned by GetMeeting when no row exists for the id.
var ErrNotFound = errors.New("meeting not found")

// InsertResult reports the outcome of InsertIfAbsent.
type InsertResult int

const (
	Inserted InsertResult = iota
	AlreadyPresent
)

// Store is the durable mapping from meetingId to Meeting, with secondary
// access by phase. Implementations must serialize concurrent updates to
// the same row and make single updates atomic across phase + field patch.
type Store interface {
	GetMeeting(ctx context.Context, id string) (model.Meeting, error)
	GetByPhase(ctx context.Context, phase model.Phase) ([]model.Meeting, error)
	InsertIfAbsent(ctx context.Context, meeting model.Meeting) (InsertResult, error)
	UpdateMeeting(ctx context.Context, id string, phase model.Phase, patch model.FieldPatch) error

	// TryAdvisoryLock attempts to acquire a named, process-independent
	// lock so only one discovery run proceeds at a time. It returns
	// false immediately if the lock is already held; callers
	// must call the returned release function exactly once if ok is true.
	TryAdvisoryLock(ctx context.Context, name string) (release func(context.Context), ok bool, err error)

	Close()
}
