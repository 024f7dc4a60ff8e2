package zones

import "math"

// Hysteresis remembers the last confirmed zone and suppresses changes that
// happen within Distance metres of the position where that zone was
// confirmed. The distance is measured as a plain difference in arc-length
// and does not account for the 0/L wrap.
type Hysteresis struct {
	Distance float64

	confirmed bool
	lastType  Type
	lastID    string
	lastS     float64
}

// NewHysteresis returns an empty hysteresis memory.
func NewHysteresis(distance float64) *Hysteresis {
	return &Hysteresis{Distance: distance}
}

// Apply filters a raw classification at position s and returns the zone to
// use. The confirmed zone only changes when the raw id differs and s has
// moved at least Distance from the last confirmed change.
func (h *Hysteresis) Apply(t Type, id string, s float64) (Type, string) {
	if h.confirmed && id != h.lastID && math.Abs(s-h.lastS) < h.Distance {
		return h.lastType, h.lastID
	}
	if !h.confirmed || id != h.lastID {
		h.confirmed = true
		h.lastType = t
		h.lastID = id
		h.lastS = s
	}
	return t, id
}

// Current returns the confirmed zone, if any.
func (h *Hysteresis) Current() (t Type, id string, s float64, ok bool) {
	return h.lastType, h.lastID, h.lastS, h.confirmed
}
