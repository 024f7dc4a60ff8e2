package coach

import (
	"fmt"
	"time"

	"github.com/banshee-data/trackcoach/internal/config"
	"github.com/banshee-data/trackcoach/internal/cue"
	"github.com/banshee-data/trackcoach/internal/telemetry"
)

// Config holds the runtime tuning of one Coach.
type Config struct {
	BufferSeconds    float64
	SmoothWin        int
	MinSamplesForCue int

	StopApproachM   float64
	ZoneHysteresisM float64

	Thresholds cue.Thresholds
	Cooldowns  cue.Cooldowns
	Bounds     telemetry.Bounds
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return ConfigFromTuning(config.DefaultCoachConfig())
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ConfigFromTuning converts the JSON configuration into a Config.
func ConfigFromTuning(cfg *config.CoachConfig) Config {
	return Config{
		BufferSeconds:    cfg.GetBufferSeconds(),
		SmoothWin:        cfg.GetSmoothWin(),
		MinSamplesForCue: cfg.GetMinSamplesForCue(),
		StopApproachM:    cfg.GetStopApproachM(),
		ZoneHysteresisM:  cfg.GetZoneHysteresisM(),
		Thresholds: cue.Thresholds{
			SpeedMarginPct: cfg.GetSpeedMarginPct(),
			PowerMarginW:   cfg.GetPowerMarginW(),
			ConfidenceMin:  cfg.GetConfidenceMin(),
		},
		Cooldowns: cue.Cooldowns{
			SameCue: seconds(cfg.GetMinSecondsBetweenSameCue()),
			ByZone:  seconds(cfg.GetCueCooldownByZone()),
			ByType:  seconds(cfg.GetCueCooldownByType()),
		},
		Bounds: telemetry.Bounds{
			SpeedKmh: telemetry.Range{Min: cfg.GetSpeedMinKmh(), Max: cfg.GetSpeedMaxKmh()},
			PowerW:   telemetry.Range{Min: cfg.GetPowerMinW(), Max: cfg.GetPowerMaxW()},
			CurrentA: telemetry.Range{Min: cfg.GetCurrentMinA(), Max: cfg.GetCurrentMaxA()},
			VoltageV: telemetry.Range{Min: cfg.GetVoltageMinV(), Max: cfg.GetVoltageMaxV()},
		},
	}
}

// Validate checks the runtime invariants.
func (c Config) Validate() error {
	switch {
	case c.BufferSeconds <= 0:
		return fmt.Errorf("buffer seconds must be positive, got %f", c.BufferSeconds)
	case c.SmoothWin < 1:
		return fmt.Errorf("smoothing window must be at least 1, got %d", c.SmoothWin)
	case c.MinSamplesForCue < 1:
		return fmt.Errorf("min samples for cue must be at least 1, got %d", c.MinSamplesForCue)
	case c.StopApproachM < 0:
		return fmt.Errorf("stop approach distance must be non-negative, got %f", c.StopApproachM)
	case c.ZoneHysteresisM < 0:
		return fmt.Errorf("zone hysteresis must be non-negative, got %f", c.ZoneHysteresisM)
	case c.Thresholds.SpeedMarginPct < 0 || c.Thresholds.PowerMarginW < 0:
		return fmt.Errorf("cue margins must be non-negative")
	case c.Thresholds.ConfidenceMin < 0 || c.Thresholds.ConfidenceMin > 1:
		return fmt.Errorf("confidence floor must be between 0 and 1, got %f", c.Thresholds.ConfidenceMin)
	case c.Cooldowns.SameCue < 0 || c.Cooldowns.ByZone < 0 || c.Cooldowns.ByType < 0:
		return fmt.Errorf("cooldowns must be non-negative")
	}
	return nil
}
