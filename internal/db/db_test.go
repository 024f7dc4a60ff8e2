package db

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackcoach/internal/cue"
	"github.com/banshee-data/trackcoach/internal/zones"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_MigratesToLatest(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(LatestVersion), version)
	assert.False(t, dirty)

	for _, table := range []string{"sessions", "cues", "zone_memory"} {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equalf(t, 1, n, "table %s", table)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.StartSession("s1", epoch, SourceLive))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	s, err := db.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, SourceLive, s.Source)
}

func TestMigrateDown(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.MigrateDown())

	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name='zone_memory'`).Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, db.MigrateUp())
}

func TestSessions(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.StartSession("abc", epoch, SourceReplay))
	s, err := db.GetSession("abc")
	require.NoError(t, err)
	assert.True(t, s.StartedAt.Equal(epoch))
	assert.Nil(t, s.EndedAt)
	assert.Equal(t, SourceReplay, s.Source)

	require.NoError(t, db.EndSession("abc", epoch.Add(time.Minute)))
	s, err = db.GetSession("abc")
	require.NoError(t, err)
	require.NotNil(t, s.EndedAt)
	assert.True(t, s.EndedAt.Equal(epoch.Add(time.Minute)))

	assert.ErrorIs(t, db.EndSession("missing", epoch), ErrSessionNotFound)
	_, err = db.GetSession("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Error(t, db.StartSession("abc", epoch, SourceLive), "duplicate id")
}

func testCue(ts float64, key string) *cue.Cue {
	return &cue.Cue{
		TS:           ts,
		ZoneID:       "TURN_1",
		ZoneType:     zones.Turn,
		State:        cue.Red,
		IsResponding: true,
		CueKey:       key,
		CueText:      cue.Text(key, "TURN_1"),
	}
}

func TestRecordAndRecentCues(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.StartSession("s1", epoch, SourceLive))
	require.NoError(t, db.StartSession("s2", epoch, SourceLive))

	require.NoError(t, db.RecordCue("s1", testCue(100, cue.KeySpeedHigh)))
	require.NoError(t, db.RecordCue("s1", testCue(102, cue.KeyTurnPowerSpike)))
	require.NoError(t, db.RecordCue("s2", testCue(101, cue.KeySpeedHigh)))

	all, err := db.RecentCues("", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []float64{102, 101, 100}, []float64{all[0].TS, all[1].TS, all[2].TS})

	var decoded cue.Cue
	require.NoError(t, json.Unmarshal(all[0].Payload, &decoded))
	if diff := cmp.Diff(*testCue(102, cue.KeyTurnPowerSpike), decoded); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	s1, err := db.RecentCues("s1", 1)
	require.NoError(t, err)
	require.Len(t, s1, 1)
	assert.Equal(t, cue.KeyTurnPowerSpike, s1[0].CueKey)
	assert.Equal(t, "red", s1[0].State)
}

func TestRecordCue_UnknownSession(t *testing.T) {
	db := setupTestDB(t)
	assert.Error(t, db.RecordCue("nope", testCue(1, cue.KeySpeedHigh)))
}

func TestRecentCues_EmptyIsNotNil(t *testing.T) {
	db := setupTestDB(t)
	cues, err := db.RecentCues("", 0)
	require.NoError(t, err)
	assert.NotNil(t, cues)
	assert.Empty(t, cues)
}

func TestZoneMemoryRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	conf := 0.75
	entries := []zones.MemoryEntry{
		{ZoneID: "TURN_1", OptSpeedMps: 15, OptPowerMicrowatts: 80e6, OptState: "COAST", Confidence: &conf, Samples: 500, Reliability: "MED"},
		{ZoneID: zones.StraightID, OptSpeedMps: 25, OptPowerMicrowatts: 100e6},
	}
	require.NoError(t, db.ReplaceZoneMemory(entries, epoch))

	got, err := db.ZoneMemory()
	require.NoError(t, err)
	want := []zones.MemoryEntry{entries[1], entries[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("zone memory mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, db.ReplaceZoneMemory(entries[:1], epoch))
	got, err = db.ZoneMemory()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
