package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackcoach/internal/coach"
	"github.com/banshee-data/trackcoach/internal/cue"
	"github.com/banshee-data/trackcoach/internal/geo"
	"github.com/banshee-data/trackcoach/internal/timeutil"
	"github.com/banshee-data/trackcoach/internal/transport"
	"github.com/banshee-data/trackcoach/internal/zones"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakePublisher struct {
	mu         sync.Mutex
	cues       []*cue.Cue
	heartbeats []string
	err        error
}

func (p *fakePublisher) PublishCue(c *cue.Cue) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cues = append(p.cues, c)
	return p.err
}

func (p *fakePublisher) Heartbeat(status string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heartbeats = append(p.heartbeats, status)
	return p.err
}

func (p *fakePublisher) Heartbeats() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.heartbeats...)
}

type recordedCue struct {
	session string
	key     string
}

type fakeStore struct {
	started []string
	ended   []string
	cues    []recordedCue
}

func (s *fakeStore) StartSession(id string, _ time.Time, source string) error {
	s.started = append(s.started, id+"/"+source)
	return nil
}

func (s *fakeStore) EndSession(id string, _ time.Time) error {
	s.ended = append(s.ended, id)
	return nil
}

func (s *fakeStore) RecordCue(sessionID string, c *cue.Cue) error {
	s.cues = append(s.cues, recordedCue{session: sessionID, key: c.CueKey})
	return nil
}

func testArtifacts() coach.Artifacts {
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

func testConfig() coach.Config {
	cfg := coach.DefaultConfig()
	cfg.MinSamplesForCue = 3
	cfg.SmoothWin = 3
	return cfg
}

type fixture struct {
	svc   *Service
	pub   *fakePublisher
	store *fakeStore
	clock *timeutil.MockClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		pub:   &fakePublisher{},
		store: &fakeStore{},
		clock: timeutil.NewMockClock(epoch),
	}
	n := 0
	svc, err := New(testConfig(), testArtifacts(), Options{
		Clock:     f.clock,
		Publisher: f.pub,
		Store:     f.store,
		NewID: func() string {
			n++
			return fmt.Sprintf("s%d", n)
		},
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

// payload is a telemetry message x metres east of the origin along the
// first straight.
func payload(ts, x, kmh float64) []byte {
	lat := 50.0
	lon := 10.0 + x/(geo.EarthRadiusMeters*math.Cos(lat*math.Pi/180))*180/math.Pi
	return []byte(fmt.Sprintf(`{"timestamp": %.1f, "latitude": %.8f, "longitude": %.8f, "speed": %.1f, "power": 200}`,
		ts, lat, lon, kmh))
}

func TestNewStartsSession(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.svc.Enabled())
	assert.Equal(t, "s1", f.svc.SessionID())
	assert.Equal(t, []string{"s1/live"}, f.store.started)

	st := f.svc.Status()
	require.NotNil(t, st.StartedAt)
	assert.Equal(t, epoch, *st.StartedAt)
}

func TestNewRejectsBadArtifacts(t *testing.T) {
	art := testArtifacts()
	art.Memory = nil
	_, err := New(testConfig(), art, Options{})
	assert.ErrorContains(t, err, "start session")
}

func TestHandleTelemetryEmitsCue(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		f.svc.HandleTelemetry(payload(float64(1000+i), float64(10+10*i), 150))
	}

	require.Len(t, f.pub.cues, 1)
	assert.Equal(t, cue.KeySpeedHigh, f.pub.cues[0].CueKey)
	assert.Equal(t, []recordedCue{{session: "s1", key: cue.KeySpeedHigh}}, f.store.cues)

	st := f.svc.Status()
	assert.Equal(t, 3, st.Decoded.OK)
	assert.Equal(t, 3, st.Stats.Received)
	assert.Equal(t, 1, st.Stats.Emitted)
	assert.Equal(t, zones.Straight, st.ZoneType)
	require.NotNil(t, st.LastCue)
	assert.Equal(t, cue.KeySpeedHigh, st.LastCue.CueKey)
}

func TestHandleTelemetryCountsUndecodable(t *testing.T) {
	f := newFixture(t)

	f.svc.HandleTelemetry([]byte("not json"))
	f.svc.HandleTelemetry([]byte(`{"latitude": "north"}`))

	st := f.svc.Status()
	assert.Equal(t, 2, st.Decoded.Invalid)
	assert.Equal(t, 0, st.Stats.Received)
}

func TestPublishFailureStillRecords(t *testing.T) {
	f := newFixture(t)
	f.pub.err = fmt.Errorf("broker away")

	for i := 0; i < 3; i++ {
		f.svc.HandleTelemetry(payload(float64(1000+i), float64(10+10*i), 150))
	}
	assert.Len(t, f.pub.cues, 1)
	assert.Len(t, f.store.cues, 1)
	assert.NotNil(t, f.svc.Status().LastCue)
}

func TestControlGatesSession(t *testing.T) {
	f := newFixture(t)

	f.svc.HandleControl([]byte(`{"action": "disable"}`))
	assert.False(t, f.svc.Enabled())
	assert.Empty(t, f.svc.SessionID())
	assert.Equal(t, []string{"s1"}, f.store.ended)

	for i := 0; i < 3; i++ {
		f.svc.HandleTelemetry(payload(float64(1000+i), float64(10+10*i), 150))
	}
	assert.Empty(t, f.pub.cues)
	st := f.svc.Status()
	assert.Equal(t, 3, st.Decoded.Gated)
	assert.Nil(t, st.StartedAt)

	// disabling twice does not end the session again
	f.svc.HandleControl([]byte(`{"enabled": false}`))
	assert.Equal(t, []string{"s1"}, f.store.ended)

	f.svc.HandleControl([]byte(`{"enabled": true}`))
	assert.True(t, f.svc.Enabled())
	assert.Equal(t, "s2", f.svc.SessionID())
	assert.Equal(t, []string{"s1/live", "s2/live"}, f.store.started)

	// the new session starts cold
	f.svc.HandleTelemetry(payload(2000, 10, 150))
	f.svc.HandleTelemetry(payload(2001, 20, 150))
	assert.Empty(t, f.pub.cues)
	assert.Equal(t, 2, f.svc.Status().Stats.Warmup)

	// enabling a running session keeps it
	f.svc.HandleControl([]byte(`{"action": "enable"}`))
	assert.Equal(t, "s2", f.svc.SessionID())
}

func TestHandleControlIgnoresGarbage(t *testing.T) {
	f := newFixture(t)

	f.svc.HandleControl([]byte(`{"action": "pause"}`))
	f.svc.HandleControl([]byte(`nope`))
	assert.True(t, f.svc.Enabled())
	assert.Empty(t, f.store.ended)
}

func TestParseControl(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    bool
		wantErr bool
	}{
		{name: "action enable", payload: `{"action":"enable"}`, want: true},
		{name: "action disable", payload: `{"action":"disable"}`, want: false},
		{name: "action case and space", payload: `{"action":"  Disable "}`, want: false},
		{name: "enabled true", payload: `{"enabled":true}`, want: true},
		{name: "enabled false", payload: `{"enabled":false}`, want: false},
		{name: "action wins", payload: `{"action":"disable","enabled":true}`, want: false},
		{name: "unknown action falls back", payload: `{"action":"pause","enabled":true}`, want: true},
		{name: "nothing", payload: `{}`, wantErr: true},
		{name: "unknown action only", payload: `{"action":"pause"}`, wantErr: true},
		{name: "not json", payload: `enable`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseControl([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunHeartbeat(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.svc.RunHeartbeat(ctx, 2*time.Second)
	}()

	// The ticker is created inside the goroutine; keep advancing until it
	// has fired.
	require.Eventually(t, func() bool {
		f.clock.Advance(2 * time.Second)
		return len(f.pub.Heartbeats()) > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, transport.StatusAlive, f.pub.Heartbeats()[0])
}

func TestRunHeartbeatWithoutPublisher(t *testing.T) {
	svc, err := New(testConfig(), testArtifacts(), Options{Clock: timeutil.NewMockClock(epoch)})
	require.NoError(t, err)
	// returns immediately
	svc.RunHeartbeat(context.Background(), time.Second)
}

func TestSetPublisherAfterNew(t *testing.T) {
	svc, err := New(testConfig(), testArtifacts(), Options{Clock: timeutil.NewMockClock(epoch)})
	require.NoError(t, err)

	pub := &fakePublisher{}
	svc.SetPublisher(pub)
	for i := 0; i < 3; i++ {
		svc.HandleTelemetry(payload(float64(1000+i), float64(10+10*i), 150))
	}
	assert.Len(t, pub.cues, 1)
}

func TestCloseEndsSession(t *testing.T) {
	f := newFixture(t)
	f.svc.Close()
	assert.False(t, f.svc.Enabled())
	assert.Equal(t, []string{"s1"}, f.store.ended)

	f.svc.Close()
	assert.Equal(t, []string{"s1"}, f.store.ended)
}
