package store

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"

	"github.com/silasm01/calendar-manager/internal/model"
)

// Store persists per-event settings: time buffers, privacy flags and the
// ignore list. It is a plain key-value layer; all reconciliation logic
// lives elsewhere and only reads an immutable snapshot per pass.
type Store struct {
	db *sql.DB
}

// Privacy holds the per-event publishing privacy flags.
type Privacy struct {
	UseGenericTitle       bool `json:"useGenericTitle"`
	UseGenericDescription bool `json:"useGenericDescription"`
}

const schema = `
CREATE TABLE IF NOT EXISTS event_buffers (
	id INTEGER PRIMARY KEY,
	event_uid TEXT NOT NULL,
	source TEXT NOT NULL,
	buffer_before INTEGER DEFAULT 0,
	buffer_after INTEGER DEFAULT 0,
	UNIQUE(event_uid, source)
);
CREATE TABLE IF NOT EXISTS event_privacy (
	id INTEGER PRIMARY KEY,
	event_uid TEXT NOT NULL,
	source TEXT NOT NULL,
	use_generic_title BOOLEAN DEFAULT 0,
	use_generic_description BOOLEAN DEFAULT 0,
	UNIQUE(event_uid, source)
);
CREATE TABLE IF NOT EXISTS ignored_events (
	id INTEGER PRIMARY KEY,
	event_uid TEXT NOT NULL UNIQUE
);
`

// Open opens (creating if necessary) the settings database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: database path is empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AllBuffers loads every buffer setting at once. The engine calls this once
// per reconciliation pass so classification never issues per-event queries.
func (s *Store) AllBuffers(ctx context.Context) (map[model.BufferKey]model.Buffer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_uid, source, buffer_before, buffer_after FROM event_buffers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buffers := make(map[model.BufferKey]model.Buffer)
	for rows.Next() {
		var key model.BufferKey
		var buf model.Buffer
		if err := rows.Scan(&key.UID, &key.Source, &buf.BeforeMin, &buf.AfterMin); err != nil {
			return nil, err
		}
		buffers[key] = buf
	}
	return buffers, rows.Err()
}

// SetBuffer upserts the buffer setting for one (uid, source) pair.
func (s *Store) SetBuffer(ctx context.Context, key model.BufferKey, buf model.Buffer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_buffers (event_uid, source, buffer_before, buffer_after)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(event_uid, source) DO UPDATE SET
			buffer_before = excluded.buffer_before,
			buffer_after = excluded.buffer_after`,
		key.UID, key.Source, buf.BeforeMin, buf.AfterMin)
	return err
}

// AllPrivacy loads every privacy setting, keyed by event UID.
func (s *Store) AllPrivacy(ctx context.Context) (map[string]Privacy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_uid, use_generic_title, use_generic_description FROM event_privacy`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	privacy := make(map[string]Privacy)
	for rows.Next() {
		var uid string
		var p Privacy
		if err := rows.Scan(&uid, &p.UseGenericTitle, &p.UseGenericDescription); err != nil {
			return nil, err
		}
		privacy[uid] = p
	}
	return privacy, rows.Err()
}

// SetPrivacy upserts the privacy flags for one (uid, source) pair.
func (s *Store) SetPrivacy(ctx context.Context, uid, source string, p Privacy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_privacy (event_uid, source, use_generic_title, use_generic_description)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(event_uid, source) DO UPDATE SET
			use_generic_title = excluded.use_generic_title,
			use_generic_description = excluded.use_generic_description`,
		uid, source, p.UseGenericTitle, p.UseGenericDescription)
	return err
}

// IgnoredUIDs lists every UID on the ignore list.
func (s *Store) IgnoredUIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event_uid FROM ignored_events`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	uids := make([]string, 0)
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		uids = append(uids, uid)
	}
	return uids, rows.Err()
}

// AddIgnored puts a UID on the ignore list. Adding a UID that is already
// ignored is not an error.
func (s *Store) AddIgnored(ctx context.Context, uid string) error {
	if uid == "" {
		return errors.New("store: empty uid")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ignored_events (event_uid) VALUES (?)
		 ON CONFLICT(event_uid) DO NOTHING`, uid)
	return err
}

// RemoveIgnored takes a UID off the ignore list; removing an absent UID is
// not an error.
func (s *Store) RemoveIgnored(ctx context.Context, uid string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM ignored_events WHERE event_uid = ?`, uid)
	return err
}
