package zones

import (
	"sort"

	"github.com/banshee-data/trackcoach/internal/units"
)

// UnknownState is reported when an entry carries no opt_state.
const UnknownState = "UNKNOWN"

// MemoryEntry is the calibrated optimum for one zone. OptPowerMicrowatts is
// stored scaled by 1e6 as produced by the offline calibration.
type MemoryEntry struct {
	ZoneID             string   `json:"zone_id"`
	OptSpeedMps        float64  `json:"opt_speed_mps"`
	OptPowerMicrowatts float64  `json:"opt_power_w"`
	OptState           string   `json:"opt_state,omitempty"`
	Confidence         *float64 `json:"confidence,omitempty"`
	Samples            int      `json:"samples,omitempty"`
	Reliability        string   `json:"reliability,omitempty"`
}

// OptPowerWatts returns the optimal power in watts.
func (e MemoryEntry) OptPowerWatts() float64 {
	return units.MicrowattsToWatts(e.OptPowerMicrowatts)
}

// ConfidenceOrDefault returns the confidence, treating a missing value as 1.
func (e MemoryEntry) ConfidenceOrDefault() float64 {
	if e.Confidence == nil {
		return 1.0
	}
	return *e.Confidence
}

// StateOrDefault returns opt_state, or UnknownState when it is empty.
func (e MemoryEntry) StateOrDefault() string {
	if e.OptState == "" {
		return UnknownState
	}
	return e.OptState
}

// Memory is a read-only zone_id keyed lookup table.
type Memory struct {
	entries map[string]MemoryEntry
}

// NewMemory indexes entries by zone id. Later duplicates replace earlier ones.
func NewMemory(entries []MemoryEntry) *Memory {
	m := &Memory{entries: make(map[string]MemoryEntry, len(entries))}
	for _, e := range entries {
		m.entries[e.ZoneID] = e
	}
	return m
}

// Lookup returns the entry for id and whether it exists.
func (m *Memory) Lookup(id string) (MemoryEntry, bool) {
	if m == nil {
		return MemoryEntry{}, false
	}
	e, ok := m.entries[id]
	return e, ok
}

// Len returns the number of zones in the table.
func (m *Memory) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// IDs returns the known zone ids in sorted order.
func (m *Memory) IDs() []string {
	if m == nil {
		return nil
	}
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Entries returns every entry ordered by zone id.
func (m *Memory) Entries() []MemoryEntry {
	ids := m.IDs()
	out := make([]MemoryEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.entries[id])
	}
	return out
}
