package geo

import (
	"errors"
	"fmt"
)

// Track is the centreline polyline of a closed circuit in the local planar
// frame. S holds the cumulative arc-length of each vertex; position Length
// is the same physical point as position 0.
type Track struct {
	Length float64   `json:"length_m"`
	X      []float64 `json:"x"`
	Y      []float64 `json:"y"`
	S      []float64 `json:"s"`
}

// Validate checks the structural invariants the projector relies on.
func (t *Track) Validate() error {
	if t == nil {
		return errors.New("track is nil")
	}
	if t.Length <= 0 {
		return fmt.Errorf("track length must be positive, got %f", t.Length)
	}
	n := len(t.X)
	if n < 2 {
		return fmt.Errorf("track needs at least 2 vertices, got %d", n)
	}
	if len(t.Y) != n || len(t.S) != n {
		return fmt.Errorf("track arrays differ in length: x=%d y=%d s=%d", n, len(t.Y), len(t.S))
	}
	if t.S[0] != 0 {
		return fmt.Errorf("track s[0] must be 0, got %f", t.S[0])
	}
	for i := 1; i < n; i++ {
		if t.S[i] <= t.S[i-1] {
			return fmt.Errorf("track s must be strictly increasing: s[%d]=%f <= s[%d]=%f", i, t.S[i], i-1, t.S[i-1])
		}
	}
	if t.S[n-1] > t.Length {
		return fmt.Errorf("track s[%d]=%f exceeds length %f", n-1, t.S[n-1], t.Length)
	}
	return nil
}

// Vertices returns the number of polyline vertices.
func (t *Track) Vertices() int {
	return len(t.X)
}
