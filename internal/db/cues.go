package db

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/trackcoach/internal/cue"
)

// MaxCueQueryLimit caps RecentCues.
const MaxCueQueryLimit = 500

// StoredCue is a logged cue. Payload is the cue exactly as published.
type StoredCue struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	TS        float64         `json:"ts"`
	ZoneID    string          `json:"zone_id"`
	CueKey    string          `json:"cue_key"`
	State     string          `json:"state"`
	Payload   json.RawMessage `json:"payload"`
}

// RecordCue appends c to the cue log of a session.
func (db *DB) RecordCue(sessionID string, c *cue.Cue) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode cue: %w", err)
	}
	responding := 0
	if c.IsResponding {
		responding = 1
	}
	_, err = db.Exec(
		`INSERT INTO cues (
			session_id, ts, zone_id, zone_type, cue_key, state, is_responding, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, c.TS, c.ZoneID, string(c.ZoneType), c.CueKey, string(c.State), responding, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to record cue: %w", err)
	}
	return nil
}

// RecentCues returns up to limit cues, newest first. sessionID filters to one
// session when non-empty.
func (db *DB) RecentCues(sessionID string, limit int) ([]StoredCue, error) {
	if limit <= 0 || limit > MaxCueQueryLimit {
		limit = MaxCueQueryLimit
	}

	query := `SELECT cue_id, session_id, ts, zone_id, cue_key, state, payload FROM cues`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY ts DESC, cue_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cues: %w", err)
	}
	defer rows.Close()

	cues := []StoredCue{}
	for rows.Next() {
		var (
			c       StoredCue
			payload string
		)
		if err := rows.Scan(&c.ID, &c.SessionID, &c.TS, &c.ZoneID, &c.CueKey, &c.State, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan cue: %w", err)
		}
		c.Payload = json.RawMessage(payload)
		cues = append(cues, c)
	}
	return cues, rows.Err()
}
