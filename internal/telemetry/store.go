// Package telemetry persists engine lifecycle events to SQLite for
// after-the-fact inspection (`vortexd inspect`) and for the
// interactive console's run-history panel. It is a pure subscriber:
// it never drives the simulation, only records what the event bus
// reports.
package telemetry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sstgo/corevortex/internal/events"
)

// Store is a SQLite-backed log of engine events. The caller owns the
// *sql.DB and its driver registration (mattn/go-sqlite3 in
// cmd/vortexd, modernc.org/sqlite in tests), matching the teacher's
// store packages.
type Store struct {
	db *sql.DB
}

// NewStore wraps db, creating the event log schema if it does not
// already exist.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate telemetry: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS engine_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TIMESTAMP NOT NULL,
			source TEXT NOT NULL,
			kind TEXT NOT NULL,
			data_json TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_engine_events_source_kind
			ON engine_events(source, kind);
		CREATE INDEX IF NOT EXISTS idx_engine_events_ts
			ON engine_events(ts);
	`)
	return err
}

// Record appends a single event to the log.
func (s *Store) Record(e events.Event) error {
	var dataJSON []byte
	if len(e.Data) > 0 {
		var err error
		dataJSON, err = json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("marshal event data: %w", err)
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO engine_events (ts, source, kind, data_json) VALUES (?, ?, ?, ?)`,
		e.Timestamp, e.Source, e.Kind, string(dataJSON),
	)
	return err
}

// Record describes one logged event, as read back from the store.
type Record struct {
	ID     int64
	Ts     time.Time
	Source string
	Kind   string
	Data   map[string]any
}

// Recent returns the most recently recorded events, newest first,
// bounded by limit.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, ts, source, kind, data_json FROM engine_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var dataJSON sql.NullString
		if err := rows.Scan(&r.ID, &r.Ts, &r.Source, &r.Kind, &dataJSON); err != nil {
			return nil, err
		}
		if dataJSON.Valid && dataJSON.String != "" {
			if err := json.Unmarshal([]byte(dataJSON.String), &r.Data); err != nil {
				return nil, fmt.Errorf("unmarshal event data for record %d: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountByKind summarizes how many of each event kind were logged, for
// the run-report renderer.
func (s *Store) CountByKind() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT kind, COUNT(*) FROM engine_events GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		out[kind] = count
	}
	return out, rows.Err()
}
