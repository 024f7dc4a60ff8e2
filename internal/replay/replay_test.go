package replay

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackcoach/internal/coach"
	"github.com/banshee-data/trackcoach/internal/cue"
	"github.com/banshee-data/trackcoach/internal/geo"
	"github.com/banshee-data/trackcoach/internal/telemetry"
	"github.com/banshee-data/trackcoach/internal/timeutil"
	"github.com/banshee-data/trackcoach/internal/zones"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() float64 { return 4242 }

const obcCSV = `obc_timestamp,gps_latitude,gps_longitude,gps_speed,jm3_voltage,jm3_current
1717243204,50.0,10.0004,31,48000,-2.5
1717243200,50.0,10.0000,30,48000,2
1717243201000,50.0,10.0001,30.5,,
2024-06-01T12:00:02Z,50.0,10.0002,31,48000,1
1717243203,50.0,10.0003,not-a-number,48000,1
,50.0,10.0005,32,48000,1
1717243205,50.0,10.0006,32,48000,1
`

func TestReadCSV(t *testing.T) {
	t.Parallel()

	samples, err := ReadCSV(strings.NewReader(obcCSV), DefaultColumnMap(), fixedNow)
	require.NoError(t, err)
	require.Len(t, samples, 6, "the row with a malformed speed is skipped")

	var times []float64
	for _, s := range samples {
		ts, ok := s.Time()
		require.True(t, ok)
		times = append(times, ts)
	}
	assert.Equal(t, []float64{4242, 1717243200, 1717243201, 1717243202, 1717243204, 1717243205}, times,
		"sorted, milliseconds normalised, ISO parsed, missing stamped with now")

	first := samples[1]
	require.NotNil(t, first.PowerW)
	assert.InDelta(t, 96.0, *first.PowerW, 1e-9, "48 V × 2 A")
	assert.Equal(t, 48000.0, *first.VoltageMV)

	noPower := samples[2]
	assert.Nil(t, noPower.PowerW)
	assert.Nil(t, noPower.CurrentA)

	regen := samples[4]
	assert.InDelta(t, 120.0, *regen.PowerW, 1e-9, "regen current counts by magnitude")
	assert.Equal(t, -2.5, *regen.CurrentA)
}

func TestReadCSV_TooFewRows(t *testing.T) {
	t.Parallel()

	in := "gps_latitude,gps_longitude,gps_speed\n50,10,1\n50,10,x\n50,10,2\n"
	_, err := ReadCSV(strings.NewReader(in), DefaultColumnMap(), fixedNow)
	assert.True(t, errors.Is(err, ErrTooFewRows))
	assert.ErrorContains(t, err, "2 valid, 1 skipped")
}

func TestReadCSV_MissingColumn(t *testing.T) {
	t.Parallel()

	_, err := ReadCSV(strings.NewReader("gps_latitude,gps_longitude\n50,10\n"), DefaultColumnMap(), fixedNow)
	assert.ErrorContains(t, err, `no "gps_speed" column`)

	_, err = ReadCSV(strings.NewReader(""), DefaultColumnMap(), fixedNow)
	assert.ErrorContains(t, err, "csv header")
}

func TestReadCSV_CustomColumnsAndBOM(t *testing.T) {
	t.Parallel()

	m, err := ParseColumnMap("speed=v, timestamp=t,latitude=lat,longitude=lon")
	require.NoError(t, err)

	var b strings.Builder
	b.WriteString("\ufefft,lat,lon,v\n")
	for i := 0; i < MinRows; i++ {
		b.WriteString("100,50,10,12\n")
	}
	samples, err := ReadCSV(strings.NewReader(b.String()), m, fixedNow)
	require.NoError(t, err)
	assert.Len(t, samples, MinRows)
	ts, _ := samples[0].Time()
	assert.Equal(t, 100.0, ts)
	assert.Equal(t, 12.0, *samples[0].SpeedKmh)
}

func TestParseColumnMap(t *testing.T) {
	t.Parallel()

	m, err := ParseColumnMap("")
	require.NoError(t, err)
	assert.Equal(t, DefaultColumnMap(), m)

	m, err = ParseColumnMap("voltage=pack_mv,current=pack_a")
	require.NoError(t, err)
	assert.Equal(t, "pack_mv", m.Voltage)
	assert.Equal(t, "pack_a", m.Current)
	assert.Equal(t, "gps_speed", m.Speed)

	for _, bad := range []string{"speed", "speed=", "altitude=alt"} {
		_, err := ParseColumnMap(bad)
		assert.Error(t, err, bad)
	}
}

func stamped(ts float64) telemetry.Sample {
	t := telemetry.Timestamp(ts)
	return telemetry.Sample{Timestamp: &t}
}

func TestRun_Paces(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(epoch)
	samples := []telemetry.Sample{stamped(100), stamped(101), stamped(103)}
	var seen int
	res, err := Run(context.Background(), samples, func(telemetry.Sample) *cue.Cue {
		seen++
		return nil
	}, Options{Speedup: 2, Clock: clock, ProgressEvery: -1})
	require.NoError(t, err)

	assert.Equal(t, 3, seen)
	assert.Equal(t, 3, res.Samples)
	assert.Equal(t, 0, res.Cues)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond}, clock.Sleeps())
}

func TestRun_UnpacedCountsCues(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(epoch)
	samples := []telemetry.Sample{stamped(1), stamped(2), stamped(3), stamped(4)}
	keys := []string{"", cue.KeySpeedHigh, cue.KeyPowerHigh, cue.KeySpeedHigh}
	i := 0
	var cueAt []int
	res, err := Run(context.Background(), samples, func(telemetry.Sample) *cue.Cue {
		k := keys[i]
		i++
		if k == "" {
			return nil
		}
		return &cue.Cue{CueKey: k}
	}, Options{Clock: clock, OnCue: func(i int, _ *cue.Cue) { cueAt = append(cueAt, i) }})
	require.NoError(t, err)

	assert.Empty(t, clock.Sleeps())
	assert.Equal(t, 3, res.Cues)
	assert.Equal(t, map[string]int{cue.KeySpeedHigh: 2, cue.KeyPowerHigh: 1}, res.ByKey)
	assert.Equal(t, []int{1, 2, 3}, cueAt)
}

func TestRun_EventClock(t *testing.T) {
	t.Parallel()

	events := timeutil.NewMockClock(epoch)
	var seen []time.Time
	_, err := Run(context.Background(), []telemetry.Sample{stamped(1000), stamped(1000.5)}, func(telemetry.Sample) *cue.Cue {
		seen = append(seen, events.Now())
		return nil
	}, Options{Clock: timeutil.NewMockClock(epoch), EventClock: events})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{time.Unix(1000, 0), time.Unix(1000, 5e8)}, seen)
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	res, err := Run(ctx, []telemetry.Sample{stamped(1), stamped(2), stamped(3)}, func(telemetry.Sample) *cue.Cue {
		n++
		cancel()
		return nil
	}, Options{Clock: timeutil.NewMockClock(epoch)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, res.Samples)
}

func TestRun_CancelDuringLongGap(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	samples := []telemetry.Sample{stamped(100), stamped(3700)}

	start := time.Now()
	res, err := Run(ctx, samples, func(telemetry.Sample) *cue.Cue {
		time.AfterFunc(20*time.Millisecond, cancel)
		return nil
	}, Options{Speedup: 1, ProgressEvery: -1})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Samples)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_Empty(t *testing.T) {
	t.Parallel()
	res, err := Run(context.Background(), nil, nil, Options{})
	require.NoError(t, err)
	assert.Zero(t, res.Samples)
}

// loopArtifacts is a 500 m by 100 m rectangle with one generous zone-memory
// entry for the straights.
func loopArtifacts() coach.Artifacts {
	conf := 0.9
	return coach.Artifacts{
		Track: &geo.Track{
			Length: 1200,
			X:      []float64{0, 500, 500, 0, 0},
			Y:      []float64{0, 0, 100, 100, 0},
			S:      []float64{0, 500, 600, 1100, 1200},
		},
		Memory: zones.NewMemory([]zones.MemoryEntry{
			{ZoneID: zones.StraightID, OptSpeedMps: 20, OptPowerMicrowatts: 500e6, Confidence: &conf},
		}),
	}
}

func TestReplayCoachWithPlots(t *testing.T) {
	t.Parallel()

	cfg := coach.DefaultConfig()
	cfg.MinSamplesForCue = 3
	cfg.SmoothWin = 3

	var rec Recorder
	events := timeutil.NewMockClock(epoch)
	c, err := coach.New(cfg, loopArtifacts(), coach.WithClock(events), coach.WithTrace(rec.Add))
	require.NoError(t, err)

	var samples []telemetry.Sample
	for i := 0; i < 20; i++ {
		x := float64(10 * i)
		lon := 10.0 + x/(geo.EarthRadiusMeters*math.Cos(50*math.Pi/180))*180/math.Pi
		s := stamped(1000 + float64(i))
		s.Latitude = telemetry.Float(50)
		s.Longitude = telemetry.Float(lon)
		s.SpeedKmh = telemetry.Float(150)
		s.PowerW = telemetry.Float(200)
		samples = append(samples, s)
	}

	res, err := Run(context.Background(), samples, c.Ingest, Options{
		Clock:      timeutil.NewMockClock(epoch),
		EventClock: events,
	})
	require.NoError(t, err)

	// one cue per same-cue cooldown window in recorded time
	assert.Greater(t, res.Cues, 1)
	assert.Equal(t, res.Cues, res.ByKey[cue.KeySpeedHigh])
	assert.Equal(t, 18, rec.Len(), "warm-up samples are not traced")

	dir := filepath.Join(t.TempDir(), "report")
	files, err := rec.WritePlots(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestWritePlots_Empty(t *testing.T) {
	t.Parallel()
	var rec Recorder
	_, err := rec.WritePlots(t.TempDir())
	assert.Error(t, err)
}
