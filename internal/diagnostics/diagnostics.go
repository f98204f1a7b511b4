// Package diagnostics persists a bounded ring of fatal/warning events
// and sync-buffer stat snapshots to a SQLite database for postmortem
// inspection. The schema is created on open; writes prune oldest rows
// past the retention cap.
package diagnostics

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_unix   INTEGER NOT NULL,
	severity  TEXT NOT NULL,
	subsystem TEXT NOT NULL,
	message   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS syncbuf_stats (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_unix INTEGER NOT NULL,
	buffer  TEXT NOT NULL,
	state   TEXT NOT NULL,
	filled  INTEGER NOT NULL,
	want    INTEGER NOT NULL
);
`

// Store is the open diagnostics database. A zero Store with db == nil
// is a valid no-op sink, so callers can leave diagnostics disabled
// without a separate nil-check at every call site.
type Store struct {
	db     *sql.DB
	retain int
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures its schema exists. retain bounds how many rows Prune keeps
// per table; retain <= 0 disables pruning.
func Open(path string, retain int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("diagnostics: create schema: %w", err)
	}
	return &Store{db: db, retain: retain}, nil
}

// Close closes the underlying database. Safe to call on a nil Store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordEvent appends one diagnostic event. Safe to call on a nil
// Store (becomes a no-op), so callers can wire this straight from
// internal/corelog without checking whether diagnostics is enabled.
func (s *Store) RecordEvent(severity, subsystem, message string) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO events (ts_unix, severity, subsystem, message) VALUES (?, ?, ?, ?)`,
		time.Now().Unix(), severity, subsystem, message,
	)
	if err != nil {
		return fmt.Errorf("diagnostics: record event: %w", err)
	}
	return s.prune("events")
}

// RecordSyncBufferStat appends one sync-buffer stat snapshot.
func (s *Store) RecordSyncBufferStat(buffer, state string, filled, want int) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO syncbuf_stats (ts_unix, buffer, state, filled, want) VALUES (?, ?, ?, ?, ?)`,
		time.Now().Unix(), buffer, state, filled, want,
	)
	if err != nil {
		return fmt.Errorf("diagnostics: record syncbuf stat: %w", err)
	}
	return s.prune("syncbuf_stats")
}

func (s *Store) prune(table string) error {
	if s.retain <= 0 {
		return nil
	}
	_, err := s.db.Exec(fmt.Sprintf(
		`DELETE FROM %s WHERE id NOT IN (SELECT id FROM %s ORDER BY id DESC LIMIT ?)`, table, table,
	), s.retain)
	return err
}

// Event is one row read back by RecentEvents.
type Event struct {
	TSUnix    int64
	Severity  string
	Subsystem string
	Message   string
}

// RecentEvents returns up to limit most recent events, newest first.
func (s *Store) RecentEvents(limit int) ([]Event, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	rows, err := s.db.Query(
		`SELECT ts_unix, severity, subsystem, message FROM events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.TSUnix, &e.Severity, &e.Subsystem, &e.Message); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
