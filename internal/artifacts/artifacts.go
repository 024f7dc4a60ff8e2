// Package artifacts loads the precomputed track description a coaching
// session runs against: centreline geometry, stop lines, turn segments and
// the zone-memory table of calibrated optima.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"

	"github.com/banshee-data/trackcoach/internal/coach"
	"github.com/banshee-data/trackcoach/internal/geo"
	"github.com/banshee-data/trackcoach/internal/zones"
)

// Artifact file names inside an artifacts directory.
const (
	TrackFile      = "track.json"
	StopLinesFile  = "stop_lines.json"
	TurnZonesFile  = "turn_zones.json"
	ZoneMemoryFile = "zone_memory.json"
)

// maxFileSize bounds every artifact read.
const maxFileSize = 32 * 1024 * 1024

// ErrNoZoneMemory is returned by LoadFS when zone_memory.json is absent.
var ErrNoZoneMemory = errors.New("zone memory file not found")

func readJSON(fsys fs.FS, name string, v any) error {
	if ext := path.Ext(name); ext != ".json" {
		return fmt.Errorf("artifact %s must have .json extension, got %q", name, ext)
	}
	f, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", name, err)
	}
	if info.Size() > maxFileSize {
		return fmt.Errorf("artifact %s too large: %d bytes (max %d)", name, info.Size(), maxFileSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// LoadTrack reads and validates the track centreline.
func LoadTrack(fsys fs.FS, name string) (*geo.Track, error) {
	var t geo.Track
	if err := readJSON(fsys, name, &t); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return &t, nil
}

// LoadStopLines reads the stop-line table.
func LoadStopLines(fsys fs.FS, name string, length float64) ([]zones.StopLine, error) {
	var stops []zones.StopLine
	if err := readJSON(fsys, name, &stops); err != nil {
		return nil, err
	}
	for i, s := range stops {
		if s.S < 0 || s.S > length {
			return nil, fmt.Errorf("invalid %s: stop line %d at %f outside [0, %f]", name, i, s.S, length)
		}
	}
	return stops, nil
}

// LoadTurnSegments reads the ordered turn-segment table.
func LoadTurnSegments(fsys fs.FS, name string, length float64) ([]zones.TurnSegment, error) {
	var turns []zones.TurnSegment
	if err := readJSON(fsys, name, &turns); err != nil {
		return nil, err
	}
	for i, t := range turns {
		if t.Start < 0 || t.Start > length || t.End < 0 || t.End > length {
			return nil, fmt.Errorf("invalid %s: turn %d [%f, %f] outside [0, %f]", name, i, t.Start, t.End, length)
		}
	}
	return turns, nil
}

// LoadZoneMemory reads the zone-memory records.
func LoadZoneMemory(fsys fs.FS, name string) ([]zones.MemoryEntry, error) {
	var entries []zones.MemoryEntry
	if err := readJSON(fsys, name, &entries); err != nil {
		return nil, err
	}
	if err := ValidateZoneMemory(entries); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return entries, nil
}

// ValidateZoneMemory checks ids and confidence ranges.
func ValidateZoneMemory(entries []zones.MemoryEntry) error {
	for i, e := range entries {
		if e.ZoneID == "" {
			return fmt.Errorf("entry %d has no zone_id", i)
		}
		if c := e.ConfidenceOrDefault(); c < 0 || c > 1 {
			return fmt.Errorf("zone %s confidence %f outside [0, 1]", e.ZoneID, c)
		}
	}
	return nil
}

// LoadFS reads every artifact from fsys. When zone_memory.json is missing the
// geometry is still returned together with an error wrapping
// ErrNoZoneMemory, so callers can source zone memory elsewhere.
func LoadFS(fsys fs.FS) (coach.Artifacts, error) {
	track, err := LoadTrack(fsys, TrackFile)
	if err != nil {
		return coach.Artifacts{}, err
	}
	stops, err := LoadStopLines(fsys, StopLinesFile, track.Length)
	if err != nil {
		return coach.Artifacts{}, err
	}
	turns, err := LoadTurnSegments(fsys, TurnZonesFile, track.Length)
	if err != nil {
		return coach.Artifacts{}, err
	}
	art := coach.Artifacts{Track: track, StopLines: stops, Turns: turns}

	entries, err := LoadZoneMemory(fsys, ZoneMemoryFile)
	if errors.Is(err, fs.ErrNotExist) {
		return art, fmt.Errorf("%w: %v", ErrNoZoneMemory, err)
	}
	if err != nil {
		return coach.Artifacts{}, err
	}
	art.Memory = zones.NewMemory(entries)
	return art, nil
}

// LoadDir reads every artifact from a directory on disk.
func LoadDir(dir string) (coach.Artifacts, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return coach.Artifacts{}, fmt.Errorf("artifacts dir: %w", err)
	}
	if !info.IsDir() {
		return coach.Artifacts{}, fmt.Errorf("artifacts dir %s is not a directory", dir)
	}
	return LoadFS(os.DirFS(dir))
}

// ZoneMemorySource supplies zone memory when the artifacts directory has none.
type ZoneMemorySource interface {
	ZoneMemory() ([]zones.MemoryEntry, error)
}

// LoadDirWithFallback is LoadDir, except that a missing zone_memory.json is
// filled from src. An empty or invalid fallback is an error.
func LoadDirWithFallback(dir string, src ZoneMemorySource) (coach.Artifacts, error) {
	art, err := LoadDir(dir)
	if !errors.Is(err, ErrNoZoneMemory) || src == nil {
		return art, err
	}
	entries, ferr := src.ZoneMemory()
	if ferr != nil {
		return coach.Artifacts{}, fmt.Errorf("zone memory fallback: %w", ferr)
	}
	if len(entries) == 0 {
		return coach.Artifacts{}, err
	}
	if verr := ValidateZoneMemory(entries); verr != nil {
		return coach.Artifacts{}, fmt.Errorf("stored zone memory: %w", verr)
	}
	art.Memory = zones.NewMemory(entries)
	return art, nil
}
