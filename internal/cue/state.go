package cue

// DrivingState is the coarse compliance state of the driver in a zone.
type DrivingState string

const (
	Green DrivingState = "green"
	Red   DrivingState = "red"
)

// ZoneState is the last evaluation recorded for a zone.
type ZoneState struct {
	State    DrivingState
	SpeedMps float64
	PowerW   float64
}

// improved reports whether cur moved toward opt from last without going
// below it, or crossed from above opt to at-or-below it.
func improved(cur, last, opt float64) bool {
	return (cur < last && cur > opt) || (cur <= opt && last > opt)
}

// responding reports whether the driver is reacting to coaching, given the
// previous state for the zone (if any) and the current evaluation.
func responding(prev ZoneState, seen bool, base DrivingState, speed, power, optSpeed, optPower float64) bool {
	if !seen || prev.State != Red {
		return false
	}
	if base == Green {
		return true
	}
	return improved(speed, prev.SpeedMps, optSpeed) || improved(power, prev.PowerW, optPower)
}
