// Package service runs coaching sessions for the live binary. It gates
// telemetry on the session switch, serializes ingest from the MQTT and
// serial goroutines, and fans emitted cues out to the publisher and the cue
// log.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/trackcoach/internal/coach"
	"github.com/banshee-data/trackcoach/internal/cue"
	"github.com/banshee-data/trackcoach/internal/db"
	"github.com/banshee-data/trackcoach/internal/monitoring"
	"github.com/banshee-data/trackcoach/internal/telemetry"
	"github.com/banshee-data/trackcoach/internal/timeutil"
	"github.com/banshee-data/trackcoach/internal/transport"
	"github.com/banshee-data/trackcoach/internal/zones"
)

// Publisher delivers cues and heartbeats to the car.
type Publisher interface {
	PublishCue(c *cue.Cue) error
	Heartbeat(status string) error
}

// CueStore persists sessions and the cues emitted in them.
type CueStore interface {
	StartSession(id string, startedAt time.Time, source string) error
	EndSession(id string, endedAt time.Time) error
	RecordCue(sessionID string, c *cue.Cue) error
}

var (
	_ Publisher = (*transport.Client)(nil)
	_ CueStore  = (*db.DB)(nil)
)

// ErrBadControl is returned for control payloads that name no state.
var ErrBadControl = errors.New("control message has no enable/disable instruction")

// Options configures a Service. Publisher and Store are optional.
type Options struct {
	Clock     timeutil.Clock
	Publisher Publisher
	Store     CueStore
	// Source is recorded with each session; defaults to db.SourceLive.
	Source string
	// NewID generates session ids; defaults to uuid.NewString.
	NewID func() string
}

// Status is a snapshot of the service for the status API.
type Status struct {
	Enabled   bool         `json:"enabled"`
	SessionID string       `json:"session_id,omitempty"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
	ZoneType  zones.Type   `json:"zone_type,omitempty"`
	ZoneID    string       `json:"zone_id,omitempty"`
	Stats     coach.Stats  `json:"stats"`
	Decoded   DecodeCounts `json:"decoded"`
	LastCue   *cue.Cue     `json:"last_cue,omitempty"`
}

// DecodeCounts counts raw payloads seen by HandleTelemetry.
type DecodeCounts struct {
	OK      int `json:"ok"`
	Invalid int `json:"invalid"`
	Gated   int `json:"gated"`
}

// Service owns the current session.
type Service struct {
	cfg  coach.Config
	art  coach.Artifacts
	opts Options

	mu        sync.Mutex
	enabled   bool
	sessionID string
	startedAt time.Time
	coach     *coach.Coach
	lastCue   *cue.Cue
	decoded   DecodeCounts
}

// New validates cfg and art and returns a Service with a session already
// running.
func New(cfg coach.Config, art coach.Artifacts, opts Options) (*Service, error) {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Source == "" {
		opts.Source = db.SourceLive
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	s := &Service{cfg: cfg, art: art, opts: opts}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) startLocked() error {
	c, err := coach.New(s.cfg, s.art, coach.WithClock(s.opts.Clock))
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	id := s.opts.NewID()
	now := s.opts.Clock.Now()
	if s.opts.Store != nil {
		if err := s.opts.Store.StartSession(id, now, s.opts.Source); err != nil {
			// The session still runs; its cues will fail to record.
			log.Printf("[SESSION] failed to record session %s: %v", id, err)
		}
	}
	s.coach = c
	s.sessionID = id
	s.startedAt = now
	s.enabled = true
	s.lastCue = nil
	log.Printf("[SESSION] started %s", id)
	return nil
}

func (s *Service) stopLocked() {
	if s.opts.Store != nil {
		if err := s.opts.Store.EndSession(s.sessionID, s.opts.Clock.Now()); err != nil {
			log.Printf("[SESSION] failed to close session %s: %v", s.sessionID, err)
		}
	}
	log.Printf("[SESSION] stopped %s", s.sessionID)
	s.coach = nil
	s.sessionID = ""
	s.enabled = false
}

// SetEnabled switches the session on or off. Enabling a running session
// and disabling a stopped one are no-ops. Each enable starts a fresh Coach.
func (s *Service) SetEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case enabled == s.enabled:
		return nil
	case enabled:
		return s.startLocked()
	default:
		s.stopLocked()
		return nil
	}
}

// Enabled reports whether a session is running.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SessionID returns the running session id, or "" when disabled.
func (s *Service) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Ingest feeds one sample to the running session. Emitted cues are logged,
// published and recorded. It returns nil when disabled.
func (s *Service) Ingest(sample telemetry.Sample) *cue.Cue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		s.decoded.Gated++
		return nil
	}

	c := s.coach.Ingest(sample)
	if c == nil {
		return nil
	}
	s.lastCue = c
	log.Printf("[CUE] %s", c.CueText)

	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.PublishCue(c); err != nil {
			log.Printf("[CUE] publish failed: %v", err)
		}
	}
	if s.opts.Store != nil {
		if err := s.opts.Store.RecordCue(s.sessionID, c); err != nil {
			log.Printf("[CUE] record failed: %v", err)
		}
	}
	return c
}

// HandleTelemetry decodes a JSON sample and ingests it.
func (s *Service) HandleTelemetry(payload []byte) {
	sample, err := telemetry.DecodeSample(payload)
	if err != nil {
		s.mu.Lock()
		s.decoded.Invalid++
		s.mu.Unlock()
		monitoring.Debugf("telemetry: %v", err)
		return
	}
	s.mu.Lock()
	s.decoded.OK++
	s.mu.Unlock()
	s.Ingest(sample)
}

// HandleControl applies a session control message.
func (s *Service) HandleControl(payload []byte) {
	enabled, err := ParseControl(payload)
	if err != nil {
		log.Printf("[CONTROL] ignoring %q: %v", payload, err)
		return
	}
	if err := s.SetEnabled(enabled); err != nil {
		log.Printf("[CONTROL] %v", err)
		return
	}
	log.Printf("[CONTROL] session enabled=%t", enabled)
}

type controlMessage struct {
	Action  string `json:"action"`
	Enabled *bool  `json:"enabled"`
}

// ParseControl reads {"action":"enable"|"disable"} or {"enabled":bool}.
// A recognised action wins over enabled.
func ParseControl(payload []byte) (bool, error) {
	var m controlMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return false, fmt.Errorf("decode control: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(m.Action)) {
	case "enable":
		return true, nil
	case "disable":
		return false, nil
	}
	if m.Enabled != nil {
		return *m.Enabled, nil
	}
	return false, ErrBadControl
}

// Status returns a snapshot of the running session.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Enabled:   s.enabled,
		SessionID: s.sessionID,
		Decoded:   s.decoded,
		LastCue:   s.lastCue,
	}
	if s.coach != nil {
		started := s.startedAt
		st.StartedAt = &started
		st.Stats = s.coach.Stats()
		if t, id, ok := s.coach.CurrentZone(); ok {
			st.ZoneType, st.ZoneID = t, id
		}
	}
	return st
}

// SetPublisher replaces the publisher. The MQTT client needs the Service as
// its handler, so it is usually attached after New.
func (s *Service) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Publisher = p
}

func (s *Service) publisher() Publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.Publisher
}

// RunHeartbeat publishes "alive" every interval until ctx is done.
func (s *Service) RunHeartbeat(ctx context.Context, interval time.Duration) {
	if s.publisher() == nil || interval <= 0 {
		return
	}
	ticker := s.opts.Clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := s.publisher().Heartbeat(transport.StatusAlive); err != nil {
				monitoring.Logf("heartbeat: %v", err)
			}
		}
	}
}

// Close ends the running session, if any.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		s.stopLocked()
	}
}
