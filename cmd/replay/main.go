// Command replay feeds a recorded telemetry CSV through the coach and
// prints every cue it would have sent.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/trackcoach/internal/artifacts"
	"github.com/banshee-data/trackcoach/internal/coach"
	"github.com/banshee-data/trackcoach/internal/config"
	"github.com/banshee-data/trackcoach/internal/cue"
	"github.com/banshee-data/trackcoach/internal/db"
	"github.com/banshee-data/trackcoach/internal/monitoring"
	"github.com/banshee-data/trackcoach/internal/replay"
	"github.com/banshee-data/trackcoach/internal/timeutil"
)

var (
	csvPath      = flag.String("csv", "", "Path to the telemetry CSV (required)")
	columns      = flag.String("columns", "", "Column overrides as field=column pairs, e.g. speed=vehicle_speed")
	speedup      = flag.Float64("speedup", 1.0, "Replay speed factor; 0 replays as fast as possible")
	eventClock   = flag.Bool("event-clock", true, "Measure cue cooldowns in recorded time instead of wall time")
	plotDir      = flag.String("plot", "", "Write speed and power plots to this directory")
	configPath   = flag.String("config", "", "Path to a JSON coach config (built-in defaults when empty)")
	artifactsDir = flag.String("artifacts", "", "Artifacts directory (overrides artifacts_dir)")
	dbPath       = flag.String("db", "", "Record the replay session and its cues in this SQLite database")
	debug        = flag.Bool("debug", false, "Enable debug logging")
)

// formatCue renders the one-line cue summary printed during a replay.
func formatCue(c *cue.Cue) string {
	return fmt.Sprintf("[CUE] %s | zone=%s conf=%.2f cur_speed=%.1f opt=%.1f cur_power=%.0f opt=%.0f",
		c.CueText, c.ZoneID, c.Confidence, c.SpeedKmh, c.OptSpeedKmh, c.PowerW, c.OptPowerW)
}

// summary renders the per-key cue counts in key order.
func summary(res replay.Result) string {
	keys := make([]string, 0, len(res.ByKey))
	for k := range res.ByKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := fmt.Sprintf("replayed %d samples in %s, %d cues", res.Samples, res.Duration.Round(time.Millisecond), res.Cues)
	for _, k := range keys {
		out += fmt.Sprintf("\n  %-12s %d", k, res.ByKey[k])
	}
	return out
}

func loadConfig(path string) (*config.CoachConfig, error) {
	if path == "" {
		return config.DefaultCoachConfig(), nil
	}
	return config.LoadCoachConfig(path)
}

func main() {
	flag.Parse()
	monitoring.SetDebug(*debug)

	if *csvPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	colMap, err := replay.ParseColumnMap(*columns)
	if err != nil {
		log.Fatalf("bad -columns: %v", err)
	}

	var store *db.DB
	if *dbPath != "" {
		store, err = db.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()
	}

	dir := *artifactsDir
	if dir == "" {
		dir = cfg.GetArtifactsDir()
	}
	var fallback artifacts.ZoneMemorySource
	if store != nil {
		fallback = store
	}
	art, err := artifacts.LoadDirWithFallback(dir, fallback)
	if err != nil {
		log.Fatalf("failed to load artifacts from %s: %v", dir, err)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		log.Fatalf("failed to open csv: %v", err)
	}
	samples, err := replay.ReadCSV(f, colMap, func() float64 { return timeutil.UnixSeconds(time.Now()) })
	f.Close()
	if err != nil {
		log.Fatalf("failed to read %s: %v", *csvPath, err)
	}
	log.Printf("[REPLAY] loaded %d samples from %s, speedup=%gx", len(samples), *csvPath, *speedup)

	var (
		rec    replay.Recorder
		opts   []coach.Option
		events *timeutil.MockClock
	)
	if *eventClock {
		first, _ := samples[0].Time()
		events = timeutil.NewMockClock(timeutil.FromUnixSeconds(first))
		opts = append(opts, coach.WithClock(events))
	}
	if *plotDir != "" {
		opts = append(opts, coach.WithTrace(rec.Add))
	}
	c, err := coach.New(coach.ConfigFromTuning(cfg), art, opts...)
	if err != nil {
		log.Fatalf("failed to build coach: %v", err)
	}

	sessionID := uuid.NewString()
	if store != nil {
		if err := store.StartSession(sessionID, time.Now(), db.SourceReplay); err != nil {
			log.Fatalf("failed to record session: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, runErr := replay.Run(ctx, samples, c.Ingest, replay.Options{
		Speedup:    *speedup,
		EventClock: events,
		OnCue: func(_ int, cu *cue.Cue) {
			fmt.Println(formatCue(cu))
			if store != nil {
				if err := store.RecordCue(sessionID, cu); err != nil {
					log.Printf("failed to record cue: %v", err)
				}
			}
		},
	})

	if store != nil {
		if err := store.EndSession(sessionID, time.Now()); err != nil {
			log.Printf("failed to close session: %v", err)
		}
		log.Printf("[REPLAY] recorded as session %s", sessionID)
	}
	if runErr != nil {
		log.Printf("[REPLAY] stopped early: %v", runErr)
	}
	fmt.Println(summary(res))

	if *plotDir != "" {
		files, err := rec.WritePlots(*plotDir)
		if err != nil {
			log.Fatalf("failed to write plots: %v", err)
		}
		for _, p := range files {
			log.Printf("[REPLAY] wrote %s", p)
		}
	}
}
