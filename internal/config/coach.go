// Package config loads the coach tuning and service configuration from JSON.
//
// Every field is optional. Get* accessors return the stock default for any
// field the file leaves out, so a partial file is always safe.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the canonical defaults file, relative to the repo root.
const DefaultConfigPath = "config/coach.defaults.json"

// PasswordEnv overrides an empty mqtt_password.
const PasswordEnv = "TRACKCOACH_MQTT_PASSWORD"

// maxFileSize bounds how much of a config file is read.
const maxFileSize = 1 * 1024 * 1024

// CoachConfig is the root configuration document.
type CoachConfig struct {
	// Buffering and smoothing
	BufferSeconds    *float64 `json:"buffer_seconds,omitempty"`
	SmoothWin        *int     `json:"smooth_win,omitempty"`
	MinSamplesForCue *int     `json:"min_samples_for_cue,omitempty"`

	// Cue thresholds
	SpeedMarginPct *float64 `json:"speed_margin_pct,omitempty"`
	PowerMarginW   *float64 `json:"power_margin_w,omitempty"`
	ConfidenceMin  *float64 `json:"confidence_min,omitempty"`

	// Zones
	StopApproachM   *float64 `json:"stop_approach_m,omitempty"`
	ZoneHysteresisM *float64 `json:"zone_hysteresis_m,omitempty"`

	// Cooldowns, in seconds
	MinSecondsBetweenSameCue *float64 `json:"min_seconds_between_same_cue,omitempty"`
	CueCooldownByZone        *float64 `json:"cue_cooldown_by_zone,omitempty"`
	CueCooldownByType        *float64 `json:"cue_cooldown_by_type,omitempty"`

	// Sanity bounds
	SpeedMinKmh *float64 `json:"speed_min_kmh,omitempty"`
	SpeedMaxKmh *float64 `json:"speed_max_kmh,omitempty"`
	PowerMinW   *float64 `json:"power_min_w,omitempty"`
	PowerMaxW   *float64 `json:"power_max_w,omitempty"`
	CurrentMinA *float64 `json:"current_min_a,omitempty"`
	CurrentMaxA *float64 `json:"current_max_a,omitempty"`
	VoltageMinV *float64 `json:"voltage_min_v,omitempty"`
	VoltageMaxV *float64 `json:"voltage_max_v,omitempty"`

	// Transport
	MQTTBroker        *string `json:"mqtt_broker,omitempty"`
	MQTTClientID      *string `json:"mqtt_client_id,omitempty"`
	MQTTUsername      *string `json:"mqtt_username,omitempty"`
	MQTTPassword      *string `json:"mqtt_password,omitempty"`
	TelemetryTopic    *string `json:"telemetry_topic,omitempty"`
	CuesTopic         *string `json:"cues_topic,omitempty"`
	StatusTopic       *string `json:"status_topic,omitempty"`
	ControlTopic      *string `json:"control_topic,omitempty"`
	HeartbeatInterval *string `json:"heartbeat_interval,omitempty"` // duration string like "2s"

	// Storage
	ArtifactsDir *string `json:"artifacts_dir,omitempty"`
	DBPath       *string `json:"db_path,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// DefaultCoachConfig returns a config with every field populated with its
// default. It matches DefaultConfigPath.
func DefaultCoachConfig() *CoachConfig {
	return &CoachConfig{
		BufferSeconds:            ptrFloat64(20),
		SmoothWin:                ptrInt(7),
		MinSamplesForCue:         ptrInt(10),
		SpeedMarginPct:           ptrFloat64(0.05),
		PowerMarginW:             ptrFloat64(30),
		ConfidenceMin:            ptrFloat64(0.4),
		StopApproachM:            ptrFloat64(80),
		ZoneHysteresisM:          ptrFloat64(5),
		MinSecondsBetweenSameCue: ptrFloat64(2),
		CueCooldownByZone:        ptrFloat64(3),
		CueCooldownByType:        ptrFloat64(2),
		SpeedMinKmh:              ptrFloat64(0),
		SpeedMaxKmh:              ptrFloat64(200),
		PowerMinW:                ptrFloat64(-1000),
		PowerMaxW:                ptrFloat64(5000),
		CurrentMinA:              ptrFloat64(-100),
		CurrentMaxA:              ptrFloat64(200),
		VoltageMinV:              ptrFloat64(0),
		VoltageMaxV:              ptrFloat64(500),
		MQTTBroker:               ptrString("tls://localhost:8883"),
		MQTTClientID:             ptrString("trackcoach"),
		MQTTUsername:             ptrString(""),
		MQTTPassword:             ptrString(""),
		TelemetryTopic:           ptrString("car/telemetry"),
		CuesTopic:                ptrString("car/cues"),
		StatusTopic:              ptrString("coach/status"),
		ControlTopic:             ptrString("coach/control"),
		HeartbeatInterval:        ptrString("2s"),
		ArtifactsDir:             ptrString("artifacts"),
		DBPath:                   ptrString("trackcoach.db"),
	}
}

// LoadCoachConfig loads a CoachConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadCoachConfig(path string) (*CoachConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &CoachConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory or
// one of its parents. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *CoachConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadCoachConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that every set value is in range.
func (c *CoachConfig) Validate() error {
	if c.BufferSeconds != nil && *c.BufferSeconds <= 0 {
		return fmt.Errorf("buffer_seconds must be positive, got %f", *c.BufferSeconds)
	}
	if c.SmoothWin != nil && *c.SmoothWin < 1 {
		return fmt.Errorf("smooth_win must be at least 1, got %d", *c.SmoothWin)
	}
	if c.MinSamplesForCue != nil && *c.MinSamplesForCue < 1 {
		return fmt.Errorf("min_samples_for_cue must be at least 1, got %d", *c.MinSamplesForCue)
	}

	fractions := []struct {
		name string
		v    *float64
	}{
		{"speed_margin_pct", c.SpeedMarginPct},
		{"confidence_min", c.ConfidenceMin},
	}
	for _, f := range fractions {
		if f.v != nil && (*f.v < 0 || *f.v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", f.name, *f.v)
		}
	}

	nonNegative := []struct {
		name string
		v    *float64
	}{
		{"power_margin_w", c.PowerMarginW},
		{"stop_approach_m", c.StopApproachM},
		{"zone_hysteresis_m", c.ZoneHysteresisM},
		{"min_seconds_between_same_cue", c.MinSecondsBetweenSameCue},
		{"cue_cooldown_by_zone", c.CueCooldownByZone},
		{"cue_cooldown_by_type", c.CueCooldownByType},
	}
	for _, f := range nonNegative {
		if f.v != nil && *f.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", f.name, *f.v)
		}
	}

	ranges := []struct {
		name     string
		min, max float64
	}{
		{"speed", c.GetSpeedMinKmh(), c.GetSpeedMaxKmh()},
		{"power", c.GetPowerMinW(), c.GetPowerMaxW()},
		{"current", c.GetCurrentMinA(), c.GetCurrentMaxA()},
		{"voltage", c.GetVoltageMinV(), c.GetVoltageMaxV()},
	}
	for _, r := range ranges {
		if r.min > r.max {
			return fmt.Errorf("%s bounds inverted: min %f > max %f", r.name, r.min, r.max)
		}
	}

	if c.MQTTBroker != nil && *c.MQTTBroker != "" {
		u, err := url.Parse(*c.MQTTBroker)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid mqtt_broker %q", *c.MQTTBroker)
		}
	}

	if c.HeartbeatInterval != nil && *c.HeartbeatInterval != "" {
		d, err := time.ParseDuration(*c.HeartbeatInterval)
		if err != nil {
			return fmt.Errorf("invalid heartbeat_interval '%s': %w", *c.HeartbeatInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("heartbeat_interval must be positive, got %s", d)
		}
	}

	return nil
}

func getFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func getString(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

// GetBufferSeconds returns the buffering horizon in seconds.
func (c *CoachConfig) GetBufferSeconds() float64 { return getFloat(c.BufferSeconds, 20) }

// GetSmoothWin returns the smoothing window in samples.
func (c *CoachConfig) GetSmoothWin() int {
	if c.SmoothWin == nil {
		return 7
	}
	return *c.SmoothWin
}

// GetMinSamplesForCue returns the cold-start sample count.
func (c *CoachConfig) GetMinSamplesForCue() int {
	if c.MinSamplesForCue == nil {
		return 10
	}
	return *c.MinSamplesForCue
}

// GetSpeedMarginPct returns the allowed fractional speed excess.
func (c *CoachConfig) GetSpeedMarginPct() float64 { return getFloat(c.SpeedMarginPct, 0.05) }

// GetPowerMarginW returns the allowed power excess in watts.
func (c *CoachConfig) GetPowerMarginW() float64 { return getFloat(c.PowerMarginW, 30) }

// GetConfidenceMin returns the zone confidence floor.
func (c *CoachConfig) GetConfidenceMin() float64 { return getFloat(c.ConfidenceMin, 0.4) }

// GetStopApproachM returns the stop-approach window length in metres.
func (c *CoachConfig) GetStopApproachM() float64 { return getFloat(c.StopApproachM, 80) }

// GetZoneHysteresisM returns the zone hysteresis distance in metres.
func (c *CoachConfig) GetZoneHysteresisM() float64 { return getFloat(c.ZoneHysteresisM, 5) }

// GetMinSecondsBetweenSameCue returns the same-key cooldown in seconds.
func (c *CoachConfig) GetMinSecondsBetweenSameCue() float64 {
	return getFloat(c.MinSecondsBetweenSameCue, 2)
}

// GetCueCooldownByZone returns the per-zone cooldown in seconds.
func (c *CoachConfig) GetCueCooldownByZone() float64 { return getFloat(c.CueCooldownByZone, 3) }

// GetCueCooldownByType returns the per-type cooldown in seconds.
func (c *CoachConfig) GetCueCooldownByType() float64 { return getFloat(c.CueCooldownByType, 2) }

func (c *CoachConfig) GetSpeedMinKmh() float64 { return getFloat(c.SpeedMinKmh, 0) }
func (c *CoachConfig) GetSpeedMaxKmh() float64 { return getFloat(c.SpeedMaxKmh, 200) }
func (c *CoachConfig) GetPowerMinW() float64   { return getFloat(c.PowerMinW, -1000) }
func (c *CoachConfig) GetPowerMaxW() float64   { return getFloat(c.PowerMaxW, 5000) }
func (c *CoachConfig) GetCurrentMinA() float64 { return getFloat(c.CurrentMinA, -100) }
func (c *CoachConfig) GetCurrentMaxA() float64 { return getFloat(c.CurrentMaxA, 200) }
func (c *CoachConfig) GetVoltageMinV() float64 { return getFloat(c.VoltageMinV, 0) }
func (c *CoachConfig) GetVoltageMaxV() float64 { return getFloat(c.VoltageMaxV, 500) }

// GetMQTTBroker returns the broker URL.
func (c *CoachConfig) GetMQTTBroker() string {
	return getString(c.MQTTBroker, "tls://localhost:8883")
}

// GetMQTTClientID returns the MQTT client id.
func (c *CoachConfig) GetMQTTClientID() string { return getString(c.MQTTClientID, "trackcoach") }

// GetMQTTUsername returns the broker username, empty for anonymous access.
func (c *CoachConfig) GetMQTTUsername() string { return getString(c.MQTTUsername, "") }

// GetMQTTPassword returns the broker password. An empty value is replaced by
// the PasswordEnv environment variable.
func (c *CoachConfig) GetMQTTPassword() string {
	if p := getString(c.MQTTPassword, ""); p != "" {
		return p
	}
	return os.Getenv(PasswordEnv)
}

func (c *CoachConfig) GetTelemetryTopic() string { return getString(c.TelemetryTopic, "car/telemetry") }
func (c *CoachConfig) GetCuesTopic() string      { return getString(c.CuesTopic, "car/cues") }
func (c *CoachConfig) GetStatusTopic() string    { return getString(c.StatusTopic, "coach/status") }
func (c *CoachConfig) GetControlTopic() string   { return getString(c.ControlTopic, "coach/control") }

// GetHeartbeatInterval parses and returns the status heartbeat period.
func (c *CoachConfig) GetHeartbeatInterval() time.Duration {
	if c.HeartbeatInterval == nil || *c.HeartbeatInterval == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(*c.HeartbeatInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// GetArtifactsDir returns the directory holding track and zone artifacts.
func (c *CoachConfig) GetArtifactsDir() string { return getString(c.ArtifactsDir, "artifacts") }

// GetDBPath returns the SQLite database path.
func (c *CoachConfig) GetDBPath() string { return getString(c.DBPath, "trackcoach.db") }
