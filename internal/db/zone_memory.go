package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/trackcoach/internal/timeutil"
	"github.com/banshee-data/trackcoach/internal/zones"
)

// ReplaceZoneMemory replaces the stored zone-memory table with entries.
func (db *DB) ReplaceZoneMemory(entries []zones.MemoryEntry, now time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM zone_memory`); err != nil {
		return fmt.Errorf("failed to clear zone memory: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO zone_memory (
		zone_id, opt_speed_mps, opt_power_uw, opt_state, confidence, samples, reliability, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	ts := timeutil.UnixSeconds(now)
	for _, e := range entries {
		var confidence sql.NullFloat64
		if e.Confidence != nil {
			confidence = sql.NullFloat64{Float64: *e.Confidence, Valid: true}
		}
		if _, err := stmt.Exec(
			e.ZoneID, e.OptSpeedMps, e.OptPowerMicrowatts, e.OptState,
			confidence, e.Samples, e.Reliability, ts,
		); err != nil {
			return fmt.Errorf("failed to insert zone %s: %w", e.ZoneID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit zone memory: %w", err)
	}
	return nil
}

// ZoneMemory returns every stored entry ordered by zone id.
func (db *DB) ZoneMemory() ([]zones.MemoryEntry, error) {
	rows, err := db.Query(`SELECT
		zone_id, opt_speed_mps, opt_power_uw, opt_state, confidence, samples, reliability
	FROM zone_memory ORDER BY zone_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query zone memory: %w", err)
	}
	defer rows.Close()

	var entries []zones.MemoryEntry
	for rows.Next() {
		var (
			e          zones.MemoryEntry
			confidence sql.NullFloat64
		)
		if err := rows.Scan(
			&e.ZoneID, &e.OptSpeedMps, &e.OptPowerMicrowatts, &e.OptState,
			&confidence, &e.Samples, &e.Reliability,
		); err != nil {
			return nil, fmt.Errorf("failed to scan zone memory: %w", err)
		}
		if confidence.Valid {
			c := confidence.Float64
			e.Confidence = &c
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
