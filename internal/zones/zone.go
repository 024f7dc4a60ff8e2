// Package zones classifies a track position into a semantic driving zone and
// holds the per-zone optimal reference values the coach compares against.
package zones

import (
	"fmt"
	"math"

	"github.com/banshee-data/trackcoach/internal/geo"
)

// Type is the semantic class of a track zone.
type Type string

const (
	Turn         Type = "TURN"
	StopApproach Type = "STOP_APPROACH"
	Straight     Type = "STRAIGHT"
)

// StraightID is the zone id shared by every straight section.
const StraightID = "STRAIGHT"

// StopLine marks a stop line at arc-length S.
type StopLine struct {
	ID int     `json:"stop_line"`
	S  float64 `json:"s_stop_m"`
}

// TurnSegment is an arc-length interval. When Start > End the segment wraps
// through the start/finish line.
type TurnSegment struct {
	Start float64 `json:"s_start"`
	End   float64 `json:"s_end"`
}

// Contains reports whether s lies inside the segment, ends included.
func (t TurnSegment) Contains(s float64) bool {
	if t.Start <= t.End {
		return s >= t.Start && s <= t.End
	}
	return s >= t.Start || s <= t.End
}

// TurnID returns the zone id of the turn at position index.
func TurnID(index int) string {
	return fmt.Sprintf("TURN_%d", index+1)
}

// StopApproachID returns the zone id of the approach to stop line id.
func StopApproachID(id int) string {
	return fmt.Sprintf("STOP_%d_APPROACH", id)
}

// Assign maps arc-length s to a zone. Turns take priority over stop
// approaches, which take priority over straights. The first matching turn
// wins; among stop lines ahead within stopApproachM the nearest wins.
func Assign(s float64, stops []StopLine, turns []TurnSegment, length, stopApproachM float64) (Type, string) {
	for i, t := range turns {
		if t.Contains(s) {
			return Turn, TurnID(i)
		}
	}

	best := math.Inf(1)
	bestID := 0
	found := false
	for _, stop := range stops {
		d := geo.ForwardDistance(s, stop.S, length)
		if d > 0 && d <= stopApproachM && d < best {
			best = d
			bestID = stop.ID
			found = true
		}
	}
	if found {
		return StopApproach, StopApproachID(bestID)
	}

	return Straight, StraightID
}
