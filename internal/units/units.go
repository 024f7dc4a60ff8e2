// Package units provides shared constants and conversions for the speed and
// electrical quantities carried by telemetry and zone memory.
package units

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid speed unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// Scale factors for stored electrical values.
const (
	MillivoltsPerVolt = 1000.0
	MicrowattsPerWatt = 1e6
)

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Unknown units fall back to m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// KmhToMps converts km/h (the telemetry wire unit) to m/s.
func KmhToMps(kmh float64) float64 {
	return kmh / 3.6
}

// MpsToKmh converts m/s to km/h.
func MpsToKmh(mps float64) float64 {
	return ConvertSpeed(mps, KMPH)
}

// MillivoltsToVolts converts a pack voltage reported in millivolts.
func MillivoltsToVolts(mv float64) float64 {
	return mv / MillivoltsPerVolt
}

// MicrowattsToWatts converts zone-memory power, which is stored in µW.
func MicrowattsToWatts(uw float64) float64 {
	return uw / MicrowattsPerWatt
}
