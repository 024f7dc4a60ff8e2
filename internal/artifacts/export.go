package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/trackcoach/internal/zones"
)

// Starting optima for a track that has not been calibrated yet. Power is in
// microwatts, as stored in zone memory.
var (
	defaultStraight = seedEntry{speedMps: 25, powerUW: 100e6, confidence: 1.0, samples: 1000, reliability: "HIGH"}
	defaultTurn     = seedEntry{speedMps: 15, powerUW: 80e6, confidence: 0.8, samples: 500, reliability: "MED"}
	defaultStop     = seedEntry{speedMps: 5, powerUW: 20e6, confidence: 0.7, samples: 300, reliability: "MED"}
)

type seedEntry struct {
	speedMps    float64
	powerUW     float64
	confidence  float64
	samples     int
	reliability string
}

func (s seedEntry) entry(id string) zones.MemoryEntry {
	conf := s.confidence
	return zones.MemoryEntry{
		ZoneID:             id,
		OptSpeedMps:        s.speedMps,
		OptPowerMicrowatts: s.powerUW,
		OptState:           "COAST",
		Confidence:         &conf,
		Samples:            s.samples,
		Reliability:        s.reliability,
	}
}

// DefaultZoneMemory returns one seed entry per zone the classifier can
// produce for the given geometry: STRAIGHT, then TURN_n, then STOP_n_APPROACH.
func DefaultZoneMemory(stops []zones.StopLine, turns []zones.TurnSegment) []zones.MemoryEntry {
	entries := make([]zones.MemoryEntry, 0, 1+len(turns)+len(stops))
	entries = append(entries, defaultStraight.entry(zones.StraightID))
	for i := range turns {
		entries = append(entries, defaultTurn.entry(zones.TurnID(i)))
	}
	for _, st := range stops {
		entries = append(entries, defaultStop.entry(zones.StopApproachID(st.ID)))
	}
	return entries
}

// WriteZoneMemory writes entries as zone_memory.json at path, replacing any
// existing file only once the new one is fully written.
func WriteZoneMemory(path string, entries []zones.MemoryEntry) error {
	if err := ValidateZoneMemory(entries); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode zone memory: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".zone_memory-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
