// Package telemetry decodes vehicle telemetry samples, applies sanity bounds,
// and keeps the short time-ordered buffer the coach smooths over.
package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/trackcoach/internal/timeutil"
)

// msThreshold separates unix seconds from unix milliseconds.
const msThreshold = 1e12

// naiveLayouts are ISO-8601 forms without a zone, read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Timestamp is a sample time in fractional unix seconds. On the wire it may
// be a number (seconds, or milliseconds above 1e12), a numeric string, or an
// ISO-8601 datetime string.
type Timestamp float64

// UnmarshalJSON accepts a number, a numeric string, an ISO datetime or null.
// An unparseable string decodes as zero, which Time reports as missing.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == "" {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		ts, err := ParseTimestamp(s)
		if err != nil {
			*t = 0
			return nil
		}
		*t = Timestamp(ts)
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", raw, err)
	}
	*t = Timestamp(NormalizeEpoch(v))
	return nil
}

// NormalizeEpoch converts milliseconds to seconds when v is above 1e12.
func NormalizeEpoch(v float64) float64 {
	if v > msThreshold {
		return v / 1000
	}
	return v
}

// ParseTimestamp parses a numeric or ISO-8601 timestamp string into unix
// seconds. Datetimes without a zone are interpreted as UTC.
func ParseTimestamp(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		return NormalizeEpoch(v), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return timeutil.UnixSeconds(t), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return timeutil.UnixSeconds(t), nil
		}
	}
	return 0, fmt.Errorf("unrecognised timestamp %q", s)
}

// Sample is one telemetry message as received from the vehicle. Every field
// is optional on the wire. Voltage is in millivolts.
type Sample struct {
	Timestamp *Timestamp `json:"timestamp,omitempty"`
	TS        *Timestamp `json:"ts,omitempty"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	SpeedKmh  *float64   `json:"speed,omitempty"`
	PowerW    *float64   `json:"power,omitempty"`
	CurrentA  *float64   `json:"current,omitempty"`
	VoltageMV *float64   `json:"voltage,omitempty"`
}

// DecodeSample parses one JSON telemetry message.
func DecodeSample(data []byte) (Sample, error) {
	var s Sample
	if err := json.Unmarshal(data, &s); err != nil {
		return Sample{}, fmt.Errorf("decode telemetry: %w", err)
	}
	return s, nil
}

// Time returns the sample time in unix seconds. "timestamp" wins over "ts".
// ok is false when neither carries a non-zero value.
func (s Sample) Time() (float64, bool) {
	if s.Timestamp != nil && *s.Timestamp != 0 {
		return float64(*s.Timestamp), true
	}
	if s.TS != nil && *s.TS != 0 {
		return float64(*s.TS), true
	}
	return 0, false
}

// Float returns a pointer to v, for building samples in code.
func Float(v float64) *float64 { return &v }
