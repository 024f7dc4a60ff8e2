package cue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/trackcoach/internal/timeutil"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "SPEED", Type(KeySpeedHigh))
	assert.Equal(t, "TURN", Type(KeyTurnPowerSpike))
	assert.Equal(t, "STOP", Type(KeyStopApproachPower))
	assert.Equal(t, "POWER", Type(KeyPowerHigh))
	assert.Equal(t, "PLAIN", Type("PLAIN"))
}

func TestRateLimiter_SameKey(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(epoch)
	r := NewRateLimiter(clock, Cooldowns{SameCue: 2 * time.Second})

	_, ok := r.Allow(KeySpeedHigh, "TURN_1")
	assert.True(t, ok)

	clock.Advance(1999 * time.Millisecond)
	_, ok = r.Allow(KeySpeedHigh, "TURN_2")
	assert.False(t, ok)

	clock.Advance(time.Millisecond)
	_, ok = r.Allow(KeySpeedHigh, "TURN_2")
	assert.True(t, ok)
}

func TestRateLimiter_ByZone(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(epoch)
	r := NewRateLimiter(clock, Cooldowns{ByZone: 3 * time.Second})

	_, ok := r.Allow(KeySpeedHigh, "TURN_1")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = r.Allow(KeyTurnPowerSpike, "TURN_1")
	assert.False(t, ok, "different key in same zone")

	_, ok = r.Allow(KeyTurnPowerSpike, "TURN_2")
	assert.True(t, ok, "different zone")
}

func TestRateLimiter_ByType(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(epoch)
	r := NewRateLimiter(clock, Cooldowns{ByType: 2 * time.Second})

	_, ok := r.Allow("POWER_HIGH", "STRAIGHT")
	assert.True(t, ok)

	_, ok = r.Allow("POWER_LOW", "TURN_1")
	assert.False(t, ok, "same type prefix")

	_, ok = r.Allow(KeySpeedHigh, "TURN_1")
	assert.True(t, ok)
}

func TestRateLimiter_RefusalDoesNotStamp(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(epoch)
	r := NewRateLimiter(clock, Cooldowns{SameCue: 2 * time.Second, ByZone: 3 * time.Second, ByType: 2 * time.Second})

	first, ok := r.Allow(KeySpeedHigh, "TURN_1")
	assert.True(t, ok)
	assert.Equal(t, epoch, first)

	clock.Advance(2500 * time.Millisecond)
	_, ok = r.Allow(KeySpeedHigh, "TURN_1")
	assert.False(t, ok, "zone cooldown still active")

	clock.Advance(500 * time.Millisecond)
	_, ok = r.Allow(KeySpeedHigh, "TURN_1")
	assert.True(t, ok, "refused attempt must not restart the cooldowns")
}
