package telemetry

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/trackcoach/internal/units"
)

var (
	// ErrMissingField is returned when latitude, longitude or speed is absent.
	ErrMissingField = errors.New("missing required field")
	// ErrSpeedOutOfRange is returned when speed is outside the sanity bounds.
	ErrSpeedOutOfRange = errors.New("speed out of range")
	// ErrPowerUnavailable is returned when neither power nor a valid
	// voltage/current pair is present.
	ErrPowerUnavailable = errors.New("power unavailable")
	// ErrPowerOutOfRange is returned when the resolved power is outside the
	// sanity bounds.
	ErrPowerOutOfRange = errors.New("power out of range")
)

// Range is an inclusive interval.
type Range struct {
	Min, Max float64
}

// Contains reports whether v lies in [Min, Max].
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Bounds holds the sanity limits applied to incoming readings.
type Bounds struct {
	SpeedKmh Range
	PowerW   Range
	CurrentA Range
	VoltageV Range
}

// DefaultBounds returns the stock sanity limits.
func DefaultBounds() Bounds {
	return Bounds{
		SpeedKmh: Range{Min: 0, Max: 200},
		PowerW:   Range{Min: -1000, Max: 5000},
		CurrentA: Range{Min: -100, Max: 200},
		VoltageV: Range{Min: 0, Max: 500},
	}
}

// Reading is a validated sample ready for projection.
type Reading struct {
	TS       float64
	Lat, Lon float64
	SpeedMps float64
	PowerW   float64
	CurrentA *float64
}

// Resolve validates a sample against b and resolves its power. Explicit power
// is preferred; when it is absent or out of bounds, power falls back to
// V*|I| from in-bounds voltage and current. fallbackTS is used when the
// sample carries no timestamp.
func Resolve(s Sample, b Bounds, fallbackTS float64) (Reading, error) {
	if s.Latitude == nil || s.Longitude == nil || s.SpeedKmh == nil {
		return Reading{}, ErrMissingField
	}
	if !finite(*s.Latitude) || !finite(*s.Longitude) {
		return Reading{}, fmt.Errorf("%w: non-finite position", ErrMissingField)
	}

	speed := *s.SpeedKmh
	if !finite(speed) || !b.SpeedKmh.Contains(speed) {
		return Reading{}, fmt.Errorf("%w: %.1f km/h", ErrSpeedOutOfRange, speed)
	}

	var voltage, current *float64
	if s.VoltageMV != nil {
		v := units.MillivoltsToVolts(*s.VoltageMV)
		if finite(v) && b.VoltageV.Contains(v) {
			voltage = &v
		}
	}
	if s.CurrentA != nil {
		i := *s.CurrentA
		if finite(i) && b.CurrentA.Contains(i) {
			current = &i
		}
	}

	var power *float64
	if s.PowerW != nil && finite(*s.PowerW) && b.PowerW.Contains(*s.PowerW) {
		p := *s.PowerW
		power = &p
	}
	if power == nil && voltage != nil && current != nil {
		p := *voltage * math.Abs(*current)
		power = &p
	}
	if power == nil {
		return Reading{}, ErrPowerUnavailable
	}
	if !b.PowerW.Contains(*power) {
		return Reading{}, fmt.Errorf("%w: %.1f W", ErrPowerOutOfRange, *power)
	}

	ts, ok := s.Time()
	if !ok {
		ts = fallbackTS
	}

	return Reading{
		TS:       ts,
		Lat:      *s.Latitude,
		Lon:      *s.Longitude,
		SpeedMps: units.KmhToMps(speed),
		PowerW:   *power,
		CurrentA: current,
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
