package coach

import "github.com/banshee-data/trackcoach/internal/cue"

// Stats counts what happened to ingested samples.
type Stats struct {
	Received      int `json:"received"`
	Rejected      int `json:"rejected"`
	Warmup        int `json:"warmup"`
	UnknownZone   int `json:"unknown_zone"`
	LowConfidence int `json:"low_confidence"`
	NoBreach      int `json:"no_breach"`
	RateLimited   int `json:"rate_limited"`
	Emitted       int `json:"emitted"`
}

func (s *Stats) count(o cue.Outcome) {
	switch o {
	case cue.Emitted:
		s.Emitted++
	case cue.UnknownZone:
		s.UnknownZone++
	case cue.LowConfidence:
		s.LowConfidence++
	case cue.NoBreach:
		s.NoBreach++
	case cue.RateLimited:
		s.RateLimited++
	}
}
