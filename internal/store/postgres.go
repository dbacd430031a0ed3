package store

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cityhall/meetingpipe/internal/model"
)

// Schema is the DDL a fresh database needs before PostgresStore is used.
// Exposed so cmd/ binaries (or an operator migration step) can apply it;
// this package does not run migrations itself.
const Schema = `
CREATE TABLE IF NOT EXISTS meetings (
	id                    TEXT PRIMARY KEY,
	title                 TEXT NOT NULL DEFAULT '',
	date                  TEXT NOT NULL DEFAULT '',
	url                   TEXT NOT NULL DEFAULT '',
	phase                 TEXT NOT NULL,
	raw_video_path        TEXT NOT NULL DEFAULT '',
	derived_chapters_path TEXT NOT NULL DEFAULT '',
	derived_metadata_path TEXT NOT NULL DEFAULT '',
	derived_audio_path    TEXT NOT NULL DEFAULT '',
	derived_diarized_path TEXT NOT NULL DEFAULT '',
	published_url         TEXT NOT NULL DEFAULT '',
	error_message         TEXT NOT NULL DEFAULT '',
	failed_at_phase        TEXT NOT NULL DEFAULT '',
	agenda_blob            TEXT NOT NULL DEFAULT '',
	chapters_blob          TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS meetings_phase_idx ON meetings (phase);
CREATE INDEX IF NOT EXISTS meetings_date_idx ON meetings (date);
`

// PostgresStore implements Store over a pgxpool connection pool. Per-row
// updates are serialized by Postgres's MVCC; readers observe a committed
// UPDATE atomically, so two workers racing to advance the same meeting
// never interleave a partial write.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and returns a ready store. Callers
// should run Schema against the same database at least once (e.g. via a
// one-off migration command) before relying on the store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) GetMeeting(ctx context.Context, id string) (model.Meeting, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, date, url, phase, raw_video_path, derived_chapters_path,
		       derived_metadata_path, derived_audio_path, derived_diarized_path,
		       published_url, error_message, failed_at_phase, agenda_blob,
		       chapters_blob, created_at, updated_at
		FROM meetings WHERE id = $1`, id)

	var m model.Meeting
	var phase, failedAtPhase string
	err := row.Scan(&m.ID, &m.Title, &m.Date, &m.URL, &phase, &m.RawVideoPath,
		&m.DerivedChaptersPath, &m.DerivedMetadataPath, &m.DerivedAudioPath,
		&m.DerivedDiarizedPath, &m.PublishedURL, &m.ErrorMessage, &failedAtPhase,
		&m.AgendaBlob, &m.ChaptersBlob, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Meeting{}, ErrNotFound
		}
		return model.Meeting{}, fmt.Errorf("get meeting %s: %w", id, err)
	}
	m.Phase = model.Phase(phase)
	m.FailedAtPhase = model.Phase(failedAtPhase)
	return m, nil
}

func (s *PostgresStore) GetByPhase(ctx context.Context, phase model.Phase) ([]model.Meeting, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, date, url, phase, raw_video_path, derived_chapters_path,
		       derived_metadata_path, derived_audio_path, derived_diarized_path,
		       published_url, error_message, failed_at_phase, agenda_blob,
		       chapters_blob, created_at, updated_at
		FROM meetings WHERE phase = $1 ORDER BY date ASC`, string(phase))
	if err != nil {
		return nil, fmt.Errorf("get by phase %s: %w", phase, err)
	}
	defer rows.Close()

	var out []model.Meeting
	for rows.Next() {
		var m model.Meeting
		var ph, failedAtPhase string
		if err := rows.Scan(&m.ID, &m.Title, &m.Date, &m.URL, &ph, &m.RawVideoPath,
			&m.DerivedChaptersPath, &m.DerivedMetadataPath, &m.DerivedAudioPath,
			&m.DerivedDiarizedPath, &m.PublishedURL, &m.ErrorMessage, &failedAtPhase,
			&m.AgendaBlob, &m.ChaptersBlob, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		m.Phase = model.Phase(ph)
		m.FailedAtPhase = model.Phase(failedAtPhase)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, m model.Meeting) (InsertResult, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO meetings (id, title, date, url, phase, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (id) DO NOTHING`,
		m.ID, m.Title, m.Date, m.URL, string(m.Phase))
	if err != nil {
		return 0, fmt.Errorf("insert meeting %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return AlreadyPresent, nil
	}
	return Inserted, nil
}

func (s *PostgresStore) UpdateMeeting(ctx context.Context, id string, phase model.Phase, patch model.FieldPatch) error {
	set := []string{"phase = $1", "updated_at = now()"}
	args := []any{string(phase)}
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("raw_video_path", patch.RawVideoPath)
	add("derived_chapters_path", patch.DerivedChaptersPath)
	add("derived_metadata_path", patch.DerivedMetadataPath)
	add("derived_audio_path", patch.DerivedAudioPath)
	add("derived_diarized_path", patch.DerivedDiarizedPath)
	add("published_url", patch.PublishedURL)
	add("error_message", patch.ErrorMessage)
	add("agenda_blob", patch.AgendaBlob)
	add("chapters_blob", patch.ChaptersBlob)
	if patch.FailedAtPhase != nil {
		args = append(args, string(*patch.FailedAtPhase))
		set = append(set, fmt.Sprintf("failed_at_phase = $%d", len(args)))
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE meetings SET %s WHERE id = $%d", joinClauses(set), len(args))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update meeting %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, name string) (func(context.Context), bool, error) {
	key := advisoryKey(name)

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection for advisory lock: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}

	release := func(releaseCtx context.Context) {
		_, _ = conn.Exec(releaseCtx, "SELECT pg_advisory_unlock($1)", key)
		conn.Release()
	}
	return release, true, nil
}

// advisoryKey hashes a lock name to the int64 pg_advisory_lock expects.
func advisoryKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

func joinClauses(clauses []string) string {
	out := ""
	for i, c := range clauses {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
