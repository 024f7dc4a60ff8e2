// Package coach turns a stream of telemetry samples into coaching cues.
//
// A Coach holds every piece of per-session state: the GPS origin, the
// smoothing buffer, the confirmed zone, per-zone driving state and the cue
// cooldowns. Construct one per session and discard it when the session ends.
// A Coach is not safe for concurrent use.
package coach

import (
	"errors"
	"fmt"

	"github.com/banshee-data/trackcoach/internal/cue"
	"github.com/banshee-data/trackcoach/internal/geo"
	"github.com/banshee-data/trackcoach/internal/monitoring"
	"github.com/banshee-data/trackcoach/internal/telemetry"
	"github.com/banshee-data/trackcoach/internal/timeutil"
	"github.com/banshee-data/trackcoach/internal/zones"
)

// Artifacts are the read-only track description a Coach works against.
type Artifacts struct {
	Track     *geo.Track
	StopLines []zones.StopLine
	Turns     []zones.TurnSegment
	Memory    *zones.Memory
}

// Validate checks that the artifacts are usable.
func (a Artifacts) Validate() error {
	if err := a.Track.Validate(); err != nil {
		return fmt.Errorf("track: %w", err)
	}
	if a.Memory == nil {
		return errors.New("zone memory is nil")
	}
	return nil
}

// TracePoint describes one sample that reached zone classification.
type TracePoint struct {
	TS       float64
	S, D     float64
	ZoneType zones.Type
	ZoneID   string
	SpeedMps float64
	PowerW   float64
	Outcome  cue.Outcome
	Cue      *cue.Cue
}

// Option configures a Coach.
type Option func(*Coach)

// WithClock sets the clock used for cue cooldowns and for samples without a
// timestamp. The default is the wall clock.
func WithClock(c timeutil.Clock) Option {
	return func(co *Coach) { co.clock = c }
}

// WithTrace registers fn to receive a TracePoint for every evaluated sample.
func WithTrace(fn func(TracePoint)) Option {
	return func(co *Coach) { co.trace = fn }
}

// Coach is one coaching session.
type Coach struct {
	cfg   Config
	art   Artifacts
	clock timeutil.Clock
	trace func(TracePoint)

	hasOrigin  bool
	lat0, lon0 float64

	buf        *telemetry.Buffer
	hysteresis *zones.Hysteresis
	engine     *cue.Engine

	// wallStamped is set while every buffered sample was stamped from the
	// clock because none carried a timestamp.
	wallStamped bool

	stats Stats
}

// New returns a Coach for one session.
func New(cfg Config, art Artifacts, opts ...Option) (*Coach, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid coach config: %w", err)
	}
	if err := art.Validate(); err != nil {
		return nil, fmt.Errorf("invalid artifacts: %w", err)
	}

	c := &Coach{
		cfg:        cfg,
		art:        art,
		clock:      timeutil.RealClock{},
		buf:        telemetry.NewBuffer(cfg.BufferSeconds),
		hysteresis: zones.NewHysteresis(cfg.ZoneHysteresisM),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.engine = cue.NewEngine(cfg.Thresholds, art.Memory, c.clock, cfg.Cooldowns)
	return c, nil
}

// Ingest processes one sample and returns a cue, or nil when nothing should
// be said. It never fails: rejected samples are counted and logged at debug
// level.
func (c *Coach) Ingest(s telemetry.Sample) *cue.Cue {
	c.stats.Received++

	r, err := telemetry.Resolve(s, c.cfg.Bounds, c.fallbackTS())
	if err != nil {
		c.stats.Rejected++
		monitoring.Debugf("sample rejected: %v", err)
		return nil
	}

	// Keep the buffer in one time domain. A sample without a timestamp
	// reuses the newest buffered time; the clock is used only until the
	// first timestamped sample arrives, which then restarts the window.
	if _, stamped := s.Time(); stamped {
		if c.wallStamped {
			c.buf.Reset()
			c.wallStamped = false
		}
	} else if c.buf.Len() == 0 {
		c.wallStamped = true
	}

	if !c.hasOrigin {
		c.lat0, c.lon0 = r.Lat, r.Lon
		c.hasOrigin = true
	}
	x, y := geo.ToLocalXY(r.Lat, r.Lon, c.lat0, c.lon0)
	pos, lateral := geo.ProjectToPolyline(x, y, c.art.Track)

	c.buf.Append(telemetry.Buffered{
		TS:       r.TS,
		Lat:      r.Lat,
		Lon:      r.Lon,
		X:        x,
		Y:        y,
		S:        pos,
		D:        lateral,
		SpeedMps: r.SpeedMps,
		PowerW:   r.PowerW,
		CurrentA: r.CurrentA,
	})

	if n := c.buf.Len(); n < c.cfg.MinSamplesForCue {
		c.stats.Warmup++
		monitoring.Debugf("buffer warming up: %d < %d", n, c.cfg.MinSamplesForCue)
		return nil
	}

	speed, power := c.buf.Smooth(c.cfg.SmoothWin)

	rawType, rawID := zones.Assign(pos, c.art.StopLines, c.art.Turns, c.art.Track.Length, c.cfg.StopApproachM)
	zoneType, zoneID := c.hysteresis.Apply(rawType, rawID, pos)

	out, outcome := c.engine.Evaluate(cue.Input{
		ZoneType: zoneType,
		ZoneID:   zoneID,
		SpeedMps: speed,
		PowerW:   power,
	})
	c.stats.count(outcome)

	if monitoring.DebugEnabled() {
		switch outcome {
		case cue.UnknownZone:
			monitoring.Debugf("zone %s not in zone memory (known: %v)", zoneID, c.art.Memory.IDs())
		case cue.LowConfidence:
			monitoring.Debugf("zone %s below confidence floor", zoneID)
		case cue.RateLimited:
			monitoring.Debugf("zone %s cue suppressed by cooldown", zoneID)
		}
	}

	if c.trace != nil {
		c.trace(TracePoint{
			TS:       r.TS,
			S:        pos,
			D:        lateral,
			ZoneType: zoneType,
			ZoneID:   zoneID,
			SpeedMps: speed,
			PowerW:   power,
			Outcome:  outcome,
			Cue:      out,
		})
	}

	return out
}

func (c *Coach) fallbackTS() float64 {
	if latest, ok := c.buf.Latest(); ok && !c.wallStamped {
		return latest
	}
	return timeutil.UnixSeconds(c.clock.Now())
}

// Origin returns the GPS origin, once the first valid sample has fixed it.
func (c *Coach) Origin() (lat0, lon0 float64, ok bool) {
	return c.lat0, c.lon0, c.hasOrigin
}

// BufferLen returns the number of buffered samples.
func (c *Coach) BufferLen() int {
	return c.buf.Len()
}

// CurrentZone returns the confirmed zone.
func (c *Coach) CurrentZone() (zones.Type, string, bool) {
	t, id, _, ok := c.hysteresis.Current()
	return t, id, ok
}

// ZoneState returns the recorded driving state of a zone.
func (c *Coach) ZoneState(zoneID string) (cue.ZoneState, bool) {
	return c.engine.ZoneState(zoneID)
}

// Stats returns a snapshot of the session counters.
func (c *Coach) Stats() Stats {
	return c.stats
}
