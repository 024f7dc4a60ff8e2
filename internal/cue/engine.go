package cue

import (
	"github.com/banshee-data/trackcoach/internal/timeutil"
	"github.com/banshee-data/trackcoach/internal/units"
	"github.com/banshee-data/trackcoach/internal/zones"
)

// Outcome explains what happened to one evaluation.
type Outcome int

const (
	Emitted Outcome = iota
	UnknownZone
	LowConfidence
	NoBreach
	RateLimited
)

func (o Outcome) String() string {
	switch o {
	case Emitted:
		return "emitted"
	case UnknownZone:
		return "unknown zone"
	case LowConfidence:
		return "low confidence"
	case NoBreach:
		return "no breach"
	case RateLimited:
		return "rate limited"
	default:
		return "unknown"
	}
}

// Thresholds are the tolerances applied against a zone's optimum.
type Thresholds struct {
	SpeedMarginPct float64
	PowerMarginW   float64
	ConfidenceMin  float64
}

// Input is one smoothed observation in a classified zone.
type Input struct {
	ZoneType zones.Type
	ZoneID   string
	SpeedMps float64
	PowerW   float64
}

// Engine evaluates observations against zone memory. It owns the per-zone
// state and rate limiter for one session and is not safe for concurrent use.
type Engine struct {
	thresholds Thresholds
	memory     *zones.Memory
	limiter    *RateLimiter
	states     map[string]ZoneState
}

// NewEngine returns an engine for one coaching session.
func NewEngine(t Thresholds, memory *zones.Memory, clock timeutil.Clock, c Cooldowns) *Engine {
	return &Engine{
		thresholds: t,
		memory:     memory,
		limiter:    NewRateLimiter(clock, c),
		states:     make(map[string]ZoneState),
	}
}

// ZoneState returns the recorded state for a zone.
func (e *Engine) ZoneState(zoneID string) (ZoneState, bool) {
	s, ok := e.states[zoneID]
	return s, ok
}

// Evaluate compares in against the zone optimum, records the zone's driving
// state and returns a cue when a threshold is breached and no cooldown is
// active.
func (e *Engine) Evaluate(in Input) (*Cue, Outcome) {
	ref, ok := e.memory.Lookup(in.ZoneID)
	if !ok {
		return nil, UnknownZone
	}
	conf := ref.ConfidenceOrDefault()
	if conf < e.thresholds.ConfidenceMin {
		return nil, LowConfidence
	}

	optSpeed := ref.OptSpeedMps
	optPower := ref.OptPowerWatts()

	speedOk := in.SpeedMps <= optSpeed*(1+e.thresholds.SpeedMarginPct)
	powerOk := in.PowerW <= optPower+e.thresholds.PowerMarginW

	var key string
	switch {
	case !speedOk:
		key = KeySpeedHigh
	case !powerOk:
		key = powerKey(in.ZoneType)
	}

	base := Red
	if speedOk && powerOk {
		base = Green
	}

	prev, seen := e.states[in.ZoneID]
	isResponding := responding(prev, seen, base, in.SpeedMps, in.PowerW, optSpeed, optPower)
	state := Red
	if base == Green || isResponding {
		state = Green
	}
	e.states[in.ZoneID] = ZoneState{State: state, SpeedMps: in.SpeedMps, PowerW: in.PowerW}

	if key == "" {
		return nil, NoBreach
	}

	now, allowed := e.limiter.Allow(key, in.ZoneID)
	if !allowed {
		return nil, RateLimited
	}

	speedDiffPct := 0.0
	if optSpeed > 0 {
		speedDiffPct = (in.SpeedMps - optSpeed) / optSpeed * 100
	}
	powerDiffW := in.PowerW - optPower
	speedKmh := units.MpsToKmh(in.SpeedMps)
	optSpeedKmh := units.MpsToKmh(optSpeed)

	return &Cue{
		TS:              timeutil.UnixSeconds(now),
		ZoneID:          in.ZoneID,
		ZoneType:        in.ZoneType,
		Confidence:      conf,
		OptState:        ref.StateOrDefault(),
		State:           state,
		IsResponding:    isResponding,
		CurrentSpeedKmh: speedKmh,
		OptimalSpeedKmh: optSpeedKmh,
		SpeedDiffPct:    speedDiffPct,
		CurrentPowerW:   in.PowerW,
		OptimalPowerW:   optPower,
		PowerDiffW:      powerDiffW,
		CueKey:          key,
		CueText:         Text(key, in.ZoneID),
		Reason:          reason(key, in.ZoneID, speedDiffPct, powerDiffW),
		OptSpeedKmh:     optSpeedKmh,
		OptPowerW:       optPower,
		SpeedKmh:        speedKmh,
		PowerW:          in.PowerW,
	}, Emitted
}
