// Command zonememory seeds zone_memory.json with default targets for every
// zone in the track artifacts.
package main

import (
	"errors"
	"flag"
	"log"
	"path/filepath"
	"time"

	"github.com/banshee-data/trackcoach/internal/artifacts"
	"github.com/banshee-data/trackcoach/internal/db"
	"github.com/banshee-data/trackcoach/internal/zones"
)

var (
	artifactsDir = flag.String("artifacts", "artifacts", "Directory containing track.json, stop_lines.json and turn_zones.json")
	output       = flag.String("output", "", "Output path (default: <artifacts>/zone_memory.json)")
	dbPath       = flag.String("db", "", "Also replace the zone memory table in this SQLite database")
)

// seed builds the default entries for the geometry in dir.
func seed(dir string) ([]zones.MemoryEntry, error) {
	art, err := artifacts.LoadDir(dir)
	if err != nil && !errors.Is(err, artifacts.ErrNoZoneMemory) {
		return nil, err
	}
	return artifacts.DefaultZoneMemory(art.StopLines, art.Turns), nil
}

func main() {
	flag.Parse()

	log.Printf("[EXPORT] loading artifacts from %s", *artifactsDir)
	entries, err := seed(*artifactsDir)
	if err != nil {
		log.Fatalf("failed to load artifacts: %v", err)
	}

	out := *output
	if out == "" {
		out = filepath.Join(*artifactsDir, artifacts.ZoneMemoryFile)
	}
	if err := artifacts.WriteZoneMemory(out, entries); err != nil {
		log.Fatalf("failed to write zone memory: %v", err)
	}
	log.Printf("[EXPORT] wrote %d zones to %s", len(entries), out)

	if *dbPath != "" {
		store, err := db.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()
		if err := store.ReplaceZoneMemory(entries, time.Now()); err != nil {
			log.Fatalf("failed to store zone memory: %v", err)
		}
		log.Printf("[EXPORT] stored %d zones in %s", len(entries), *dbPath)
	}
}
