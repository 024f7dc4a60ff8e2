package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackcoach/internal/artifacts"
)

func writeArtifacts(t *testing.T, withMemory bool) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		artifacts.TrackFile:     `{"length_m": 400, "x": [0, 100, 100, 0, 0], "y": [0, 0, 100, 100, 0], "s": [0, 100, 200, 300, 400]}`,
		artifacts.StopLinesFile: `[{"stop_line": 1, "s_stop_m": 150}]`,
		artifacts.TurnZonesFile: `[{"s_start": 90, "s_end": 110}, {"s_start": 290, "s_end": 310}]`,
	}
	if withMemory {
		files[artifacts.ZoneMemoryFile] = `[{"zone_id": "STRAIGHT", "opt_speed_mps": 1, "opt_power_w": 1}]`
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestSeed(t *testing.T) {
	entries, err := seed(writeArtifacts(t, false))
	require.NoError(t, err)
	assert.Len(t, entries, 4, "straight, two turns, one stop approach")
}

func TestSeedIgnoresExistingMemory(t *testing.T) {
	entries, err := seed(writeArtifacts(t, true))
	require.NoError(t, err)
	assert.Equal(t, 25.0, entries[0].OptSpeedMps)
}

func TestSeedMissingTrack(t *testing.T) {
	_, err := seed(t.TempDir())
	assert.Error(t, err)
}

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, "artifacts", *artifactsDir)
	assert.Empty(t, *output)
	assert.Empty(t, *dbPath)
}
