package store

import (
	"context"
	"sync"
	"time"

	"github.com/cityhall/meetingpipe/internal/model"
)

// MemoryStore is an in-process fake satisfying Store, used by tests that
// exercise the orchestrator and workers without a live Postgres instance.
type MemoryStore struct {
	mu       sync.Mutex
	meetings map[string]model.Meeting
	locks    map[string]bool
}

// NewMemoryStore returns an empty fake store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		meetings: make(map[string]model.Meeting),
		locks:    make(map[string]bool),
	}
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) GetMeeting(_ context.Context, id string) (model.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return model.Meeting{}, ErrNotFound
	}
	return m, nil
}

func (s *MemoryStore) GetByPhase(_ context.Context, phase model.Phase) ([]model.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Meeting
	for _, m := range s.meetings {
		if m.Phase == phase {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertIfAbsent(_ context.Context, m model.Meeting) (InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meetings[m.ID]; ok {
		return AlreadyPresent, nil
	}
	now := time.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	s.meetings[m.ID] = m
	return Inserted, nil
}

func (s *MemoryStore) UpdateMeeting(_ context.Context, id string, phase model.Phase, patch model.FieldPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return ErrNotFound
	}
	m.Phase = phase
	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&m.RawVideoPath, patch.RawVideoPath)
	apply(&m.DerivedChaptersPath, patch.DerivedChaptersPath)
	apply(&m.DerivedMetadataPath, patch.DerivedMetadataPath)
	apply(&m.DerivedAudioPath, patch.DerivedAudioPath)
	apply(&m.DerivedDiarizedPath, patch.DerivedDiarizedPath)
	apply(&m.PublishedURL, patch.PublishedURL)
	apply(&m.ErrorMessage, patch.ErrorMessage)
	apply(&m.AgendaBlob, patch.AgendaBlob)
	apply(&m.ChaptersBlob, patch.ChaptersBlob)
	if patch.FailedAtPhase != nil {
		m.FailedAtPhase = *patch.FailedAtPhase
	}
	m.UpdatedAt = time.Now()
	s.meetings[id] = m
	return nil
}

func (s *MemoryStore) TryAdvisoryLock(_ context.Context, name string) (func(context.Context), bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[name] {
		return nil, false, nil
	}
	s.locks[name] = true
	release := func(context.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.locks, name)
	}
	return release, true, nil
}
