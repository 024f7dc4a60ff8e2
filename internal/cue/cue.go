// Package cue decides whether smoothed driving behaviour in a zone deserves a
// coaching cue, tracks per-zone green/red state and rate limits emissions.
package cue

import (
	"fmt"
	"strings"

	"github.com/banshee-data/trackcoach/internal/zones"
)

// Cue keys.
const (
	KeySpeedHigh         = "SPEED_HIGH"
	KeyTurnPowerSpike    = "TURN_POWER_SPIKE"
	KeyStopApproachPower = "STOP_APPROACH_POWER"
	KeyPowerHigh         = "POWER_HIGH"
)

// Cue is the coaching record handed to the transport. The trailing legacy
// fields duplicate the canonical ones for older dashboards.
type Cue struct {
	TS              float64      `json:"ts"`
	ZoneID          string       `json:"zone_id"`
	ZoneType        zones.Type   `json:"zone_type"`
	Confidence      float64      `json:"confidence"`
	OptState        string       `json:"opt_state"`
	State           DrivingState `json:"state"`
	IsResponding    bool         `json:"is_responding"`
	CurrentSpeedKmh float64      `json:"current_speed_kmh"`
	OptimalSpeedKmh float64      `json:"optimal_speed_kmh"`
	SpeedDiffPct    float64      `json:"speed_diff_pct"`
	CurrentPowerW   float64      `json:"current_power_w"`
	OptimalPowerW   float64      `json:"optimal_power_w"`
	PowerDiffW      float64      `json:"power_diff_w"`
	CueKey          string       `json:"cue_key"`
	CueText         string       `json:"cue_text"`
	Reason          string       `json:"reason"`

	OptSpeedKmh float64 `json:"opt_speed_kmh"`
	OptPowerW   float64 `json:"opt_power_w"`
	SpeedKmh    float64 `json:"speed_kmh"`
	PowerW      float64 `json:"power_w"`
}

// Type returns the cue type used by the type cooldown: the part of key before
// the first underscore, or the whole key when there is none.
func Type(key string) string {
	if i := strings.IndexByte(key, '_'); i >= 0 {
		return key[:i]
	}
	return key
}

// powerKey selects the power cue for a zone type.
func powerKey(t zones.Type) string {
	switch t {
	case zones.Turn:
		return KeyTurnPowerSpike
	case zones.StopApproach:
		return KeyStopApproachPower
	default:
		return KeyPowerHigh
	}
}

// Text returns the driver-facing message for key in zone.
func Text(key, zoneID string) string {
	switch key {
	case KeySpeedHigh:
		return fmt.Sprintf("%s: Too fast → Coast / reduce throttle", zoneID)
	case KeyTurnPowerSpike:
		return fmt.Sprintf("%s: Power spike in turn → Smooth throttle", zoneID)
	case KeyStopApproachPower:
		return fmt.Sprintf("%s: Stop ahead → Coast earlier, keep power low", zoneID)
	default:
		return fmt.Sprintf("%s: Power too high → Reduce throttle", zoneID)
	}
}

func reason(key, zoneID string, speedDiffPct, powerDiffW float64) string {
	switch {
	case key == KeySpeedHigh:
		return fmt.Sprintf("Speed %.1f%% above optimal", speedDiffPct)
	case strings.Contains(key, "POWER"):
		return fmt.Sprintf("Power %.1fW above optimal", powerDiffW)
	default:
		return fmt.Sprintf("Zone %s threshold exceeded", zoneID)
	}
}
