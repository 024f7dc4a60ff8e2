package cue

import (
	"time"

	"github.com/banshee-data/trackcoach/internal/timeutil"
)

// Cooldowns are the three independent rate limits applied to cues.
type Cooldowns struct {
	SameCue time.Duration
	ByZone  time.Duration
	ByType  time.Duration
}

// RateLimiter tracks the last emission time per cue key, zone and cue type.
// It is not safe for concurrent use.
type RateLimiter struct {
	clock     timeutil.Clock
	cooldowns Cooldowns

	byKey  map[string]time.Time
	byZone map[string]time.Time
	byType map[string]time.Time
}

// NewRateLimiter returns a limiter reading time from clock.
func NewRateLimiter(clock timeutil.Clock, c Cooldowns) *RateLimiter {
	return &RateLimiter{
		clock:     clock,
		cooldowns: c,
		byKey:     make(map[string]time.Time),
		byZone:    make(map[string]time.Time),
		byType:    make(map[string]time.Time),
	}
}

func cooling(last map[string]time.Time, k string, now time.Time, d time.Duration) bool {
	t, ok := last[k]
	return ok && now.Sub(t) < d
}

// Allow reports whether a cue with key in zoneID may be emitted now. On
// success all three clocks are stamped with the returned time; a refusal
// leaves them untouched.
func (r *RateLimiter) Allow(key, zoneID string) (time.Time, bool) {
	now := r.clock.Now()
	typ := Type(key)

	if cooling(r.byKey, key, now, r.cooldowns.SameCue) ||
		cooling(r.byZone, zoneID, now, r.cooldowns.ByZone) ||
		cooling(r.byType, typ, now, r.cooldowns.ByType) {
		return now, false
	}

	r.byKey[key] = now
	r.byZone[zoneID] = now
	r.byType[typ] = now
	return now, true
}
