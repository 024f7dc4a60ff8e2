package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/trackcoach/internal/timeutil"
)

// Session sources.
const (
	SourceLive   = "live"
	SourceReplay = "replay"
)

// Session is one coaching session.
type Session struct {
	ID        string     `json:"session_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Source    string     `json:"source"`
}

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// StartSession records a new session.
func (db *DB) StartSession(id string, startedAt time.Time, source string) error {
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, started_at, source) VALUES (?, ?, ?)`,
		id, timeutil.UnixSeconds(startedAt), source,
	)
	if err != nil {
		return fmt.Errorf("failed to start session %s: %w", id, err)
	}
	return nil
}

// EndSession stamps the end time of a session.
func (db *DB) EndSession(id string, endedAt time.Time) error {
	res, err := db.Exec(
		`UPDATE sessions SET ended_at = ? WHERE session_id = ?`,
		timeutil.UnixSeconds(endedAt), id,
	)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// GetSession returns a session by id.
func (db *DB) GetSession(id string) (*Session, error) {
	var (
		started float64
		ended   sql.NullFloat64
		s       Session
	)
	err := db.QueryRow(
		`SELECT session_id, started_at, ended_at, source FROM sessions WHERE session_id = ?`, id,
	).Scan(&s.ID, &started, &ended, &s.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	s.StartedAt = timeutil.FromUnixSeconds(started)
	if ended.Valid {
		t := timeutil.FromUnixSeconds(ended.Float64)
		s.EndedAt = &t
	}
	return &s, nil
}
