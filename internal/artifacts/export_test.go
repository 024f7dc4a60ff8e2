package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackcoach/internal/zones"
)

func TestDefaultZoneMemory(t *testing.T) {
	t.Parallel()
	art, err := LoadFS(testFS())
	require.NoError(t, err)

	entries := DefaultZoneMemory(art.StopLines, art.Turns)

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ZoneID
	}
	assert.Equal(t, []string{"STRAIGHT", "TURN_1", "TURN_2", "STOP_1_APPROACH", "STOP_2_APPROACH"}, ids)

	turn := entries[1]
	assert.Equal(t, 15.0, turn.OptSpeedMps)
	assert.Equal(t, 80.0, turn.OptPowerWatts())
	assert.Equal(t, 0.8, turn.ConfidenceOrDefault())
	assert.Equal(t, "COAST", turn.StateOrDefault())

	// entries do not share confidence pointers
	*entries[1].Confidence = 0.1
	assert.Equal(t, 0.8, entries[2].ConfidenceOrDefault())

	assert.NoError(t, ValidateZoneMemory(entries))
}

func TestDefaultZoneMemory_EmptyGeometry(t *testing.T) {
	t.Parallel()
	entries := DefaultZoneMemory(nil, nil)
	require.Len(t, entries, 1)
	assert.Equal(t, zones.StraightID, entries[0].ZoneID)
}

func TestWriteZoneMemory_RoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for name, body := range map[string]string{
		TrackFile:     trackJSON,
		StopLinesFile: stopLinesJSON,
		TurnZonesFile: turnZonesJSON,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	geometry, err := LoadDir(dir)
	require.ErrorIs(t, err, ErrNoZoneMemory)

	want := DefaultZoneMemory(geometry.StopLines, geometry.Turns)
	require.NoError(t, WriteZoneMemory(filepath.Join(dir, ZoneMemoryFile), want))

	got, err := LoadZoneMemory(os.DirFS(dir), ZoneMemoryFile)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("zone memory mismatch (-want +got):\n%s", diff)
	}

	art, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, len(want), art.Memory.Len())

	leftovers, err := filepath.Glob(filepath.Join(dir, ".zone_memory-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestWriteZoneMemory_Invalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), ZoneMemoryFile)
	err := WriteZoneMemory(path, []zones.MemoryEntry{{OptSpeedMps: 3}})
	assert.ErrorContains(t, err, "no zone_id")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
