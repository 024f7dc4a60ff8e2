package replay

import (
	"context"
	"time"

	"github.com/banshee-data/trackcoach/internal/cue"
	"github.com/banshee-data/trackcoach/internal/monitoring"
	"github.com/banshee-data/trackcoach/internal/telemetry"
	"github.com/banshee-data/trackcoach/internal/timeutil"
)

// DefaultProgressEvery is how often Run logs progress, in samples.
const DefaultProgressEvery = 200

// IngestFunc consumes one sample and returns a cue or nil.
type IngestFunc func(telemetry.Sample) *cue.Cue

// Options controls a replay.
type Options struct {
	// Speedup divides the recorded inter-sample gaps. Zero or less replays
	// as fast as possible.
	Speedup float64

	// Clock paces the replay; defaults to the wall clock.
	Clock timeutil.Clock

	// EventClock, when set, is moved to each sample's timestamp before the
	// sample is ingested, so that a Coach built on it measures cooldowns in
	// recorded time.
	EventClock *timeutil.MockClock

	// ProgressEvery defaults to DefaultProgressEvery; negative disables it.
	ProgressEvery int

	// OnCue is called for every emitted cue.
	OnCue func(i int, c *cue.Cue)
}

// Result summarises a replay.
type Result struct {
	Samples  int
	Cues     int
	ByKey    map[string]int
	Duration time.Duration
}

// Run feeds samples to ingest in order, sleeping between them so that the
// replay takes the recorded duration divided by Speedup. It stops early
// when ctx is done.
func Run(ctx context.Context, samples []telemetry.Sample, ingest IngestFunc, opts Options) (Result, error) {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.ProgressEvery == 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}

	res := Result{ByKey: make(map[string]int)}
	if len(samples) == 0 {
		return res, nil
	}

	wallStart := opts.Clock.Now()
	dataStart, _ := samples[0].Time()

	for i, s := range samples {
		if err := ctx.Err(); err != nil {
			res.Duration = opts.Clock.Since(wallStart)
			return res, err
		}

		ts, hasTS := s.Time()
		if opts.Speedup > 0 && hasTS {
			offset := time.Duration((ts - dataStart) / opts.Speedup * float64(time.Second))
			if wait := wallStart.Add(offset).Sub(opts.Clock.Now()); wait > 0 {
				if err := opts.Clock.Sleep(ctx, wait); err != nil {
					res.Duration = opts.Clock.Since(wallStart)
					return res, err
				}
			}
		}
		if opts.EventClock != nil && hasTS {
			opts.EventClock.Set(timeutil.FromUnixSeconds(ts))
		}

		if c := ingest(s); c != nil {
			res.Cues++
			res.ByKey[c.CueKey]++
			if opts.OnCue != nil {
				opts.OnCue(i, c)
			}
		}
		res.Samples++

		if opts.ProgressEvery > 0 && i%opts.ProgressEvery == 0 {
			monitoring.Logf("... replayed %d/%d", i, len(samples))
		}
	}

	res.Duration = opts.Clock.Since(wallStart)
	return res, nil
}
