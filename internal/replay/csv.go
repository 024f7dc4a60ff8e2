// Package replay drives a Coach from recorded telemetry: it decodes CSV
// logs, replays them with optional pacing and renders a report of the run.
package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/trackcoach/internal/telemetry"
	"github.com/banshee-data/trackcoach/internal/units"
)

// MinRows is the fewest valid rows a replay accepts.
const MinRows = 5

// ErrTooFewRows is returned when a CSV yields fewer than MinRows samples.
var ErrTooFewRows = errors.New("not enough valid rows after column mapping")

// ColumnMap names the CSV columns holding each telemetry field. Voltage is
// in millivolts; power is derived from voltage and current when both are
// present.
type ColumnMap struct {
	Timestamp string `json:"timestamp"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Speed     string `json:"speed"`
	Voltage   string `json:"voltage"`
	Current   string `json:"current"`
}

// DefaultColumnMap matches the on-board computer's CSV export.
func DefaultColumnMap() ColumnMap {
	return ColumnMap{
		Timestamp: "obc_timestamp",
		Latitude:  "gps_latitude",
		Longitude: "gps_longitude",
		Speed:     "gps_speed",
		Voltage:   "jm3_voltage",
		Current:   "jm3_current",
	}
}

// ParseColumnMap overrides defaults from "field=column" pairs separated by
// commas, e.g. "speed=vehicle_speed,timestamp=ts".
func ParseColumnMap(mapping string) (ColumnMap, error) {
	m := DefaultColumnMap()
	if strings.TrimSpace(mapping) == "" {
		return m, nil
	}
	for _, pair := range strings.Split(mapping, ",") {
		field, column, ok := strings.Cut(strings.TrimSpace(pair), "=")
		column = strings.TrimSpace(column)
		if !ok || column == "" {
			return m, fmt.Errorf("invalid column mapping %q: want field=column", pair)
		}
		switch strings.TrimSpace(field) {
		case "timestamp":
			m.Timestamp = column
		case "latitude":
			m.Latitude = column
		case "longitude":
			m.Longitude = column
		case "speed":
			m.Speed = column
		case "voltage":
			m.Voltage = column
		case "current":
			m.Current = column
		default:
			return m, fmt.Errorf("unknown telemetry field %q", field)
		}
	}
	return m, nil
}

type columnIndex map[string]int

func (ci columnIndex) get(record []string, name string) string {
	i, ok := ci[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// optFloat parses a possibly empty cell. NaN counts as empty.
func optFloat(cell string) (*float64, error) {
	if cell == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) {
		return nil, nil
	}
	return &v, nil
}

// parseTimestampCell returns unix seconds, or false when the cell is empty
// or unparseable.
func parseTimestampCell(cell string) (float64, bool) {
	if cell == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		if math.IsNaN(v) {
			return 0, false
		}
		return telemetry.NormalizeEpoch(v), true
	}
	v, err := telemetry.ParseTimestamp(cell)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ReadCSV decodes rows into samples sorted by timestamp. Rows with a
// malformed numeric cell are skipped; rows without a usable timestamp are
// stamped with now(). Fewer than MinRows samples is an error.
func ReadCSV(r io.Reader, m ColumnMap, now func() float64) ([]telemetry.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	ci := make(columnIndex, len(header))
	for i, name := range header {
		ci[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, required := range []string{m.Latitude, m.Longitude, m.Speed} {
		if _, ok := ci[required]; !ok {
			return nil, fmt.Errorf("csv has no %q column", required)
		}
	}

	var (
		samples []telemetry.Sample
		skipped int
		line    = 1
	)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		s, err := rowToSample(ci, m, record, now)
		if err != nil {
			skipped++
			continue
		}
		samples = append(samples, s)
	}

	if len(samples) < MinRows {
		return nil, fmt.Errorf("%w: %d valid, %d skipped", ErrTooFewRows, len(samples), skipped)
	}
	sort.SliceStable(samples, func(i, j int) bool {
		ti, _ := samples[i].Time()
		tj, _ := samples[j].Time()
		return ti < tj
	})
	return samples, nil
}

func rowToSample(ci columnIndex, m ColumnMap, record []string, now func() float64) (telemetry.Sample, error) {
	var (
		s   telemetry.Sample
		err error
	)
	ts, ok := parseTimestampCell(ci.get(record, m.Timestamp))
	if !ok {
		ts = now()
	}
	t := telemetry.Timestamp(ts)
	s.Timestamp = &t

	if s.Latitude, err = optFloat(ci.get(record, m.Latitude)); err != nil {
		return s, err
	}
	if s.Longitude, err = optFloat(ci.get(record, m.Longitude)); err != nil {
		return s, err
	}
	if s.SpeedKmh, err = optFloat(ci.get(record, m.Speed)); err != nil {
		return s, err
	}

	mv, err := optFloat(ci.get(record, m.Voltage))
	if err != nil {
		return s, err
	}
	amps, err := optFloat(ci.get(record, m.Current))
	if err != nil {
		return s, err
	}
	if mv != nil && amps != nil {
		s.VoltageMV = mv
		s.CurrentA = amps
		s.PowerW = telemetry.Float(units.MillivoltsToVolts(*mv) * math.Abs(*amps))
	}
	return s, nil
}
