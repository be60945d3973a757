// Package session persists engine state across process restarts and
// reconciles it against the broker's book on startup.
package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/breakout/position"
)

// Snapshot is the full durable state of one trading session, written after
// every position or attempt-count mutation and read back once on startup.
type Snapshot struct {
	SessionDate string              `json:"session_date"` // YYYY-MM-DD
	Positions   []position.Position `json:"positions"`
	Attempts    map[string]int      `json:"attempts"` // entries per symbol
	LastPos     map[string]int64    `json:"last_pos"` // last logical bar position per symbol
	SavedAt     time.Time           `json:"saved_at"`
}

// Schema holds the session-state table.
const Schema = `
CREATE TABLE IF NOT EXISTS session_state (
	session_date TEXT PRIMARY KEY,
	payload      TEXT NOT NULL,
	saved_at     TIMESTAMP NOT NULL
);
`

// Store is a SQLite-backed snapshot store. One row per session date; each
// save replaces the previous snapshot for that date.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the state database. Use ":memory:" in tests.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply state schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save writes the snapshot, replacing any earlier one for the same date.
func (s *Store) Save(snap Snapshot) error {
	if snap.SessionDate == "" {
		return fmt.Errorf("save snapshot: session date required")
	}
	snap.SavedAt = time.Now().UTC()
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO session_state (session_date, payload, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_date) DO UPDATE SET
			payload = excluded.payload,
			saved_at = excluded.saved_at`,
		snap.SessionDate, string(payload), snap.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.SessionDate, err)
	}
	return nil
}

// Load returns the snapshot for the date. ok is false when none exists,
// which is the normal cold-start case, not an error.
func (s *Store) Load(sessionDate string) (Snapshot, bool, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM session_state WHERE session_date = ?`,
		sessionDate,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load snapshot %s: %w", sessionDate, err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot %s: %w", sessionDate, err)
	}
	return snap, true, nil
}

// Prune deletes snapshots older than the given date (exclusive).
func (s *Store) Prune(before string) error {
	_, err := s.db.Exec(`DELETE FROM session_state WHERE session_date < ?`, before)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}
