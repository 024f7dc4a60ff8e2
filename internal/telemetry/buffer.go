package telemetry

import "sort"

// Buffered is a projected sample held in the smoothing buffer.
type Buffered struct {
	TS       float64
	Lat, Lon float64
	X, Y     float64
	S, D     float64
	SpeedMps float64
	PowerW   float64
	CurrentA *float64
}

// Buffer keeps samples sorted by timestamp and drops those older than the
// horizon relative to the newest sample.
type Buffer struct {
	horizon float64
	samples []Buffered
}

// NewBuffer returns a buffer with a horizon in seconds.
func NewBuffer(horizon float64) *Buffer {
	return &Buffer{horizon: horizon}
}

// Append inserts b at its sorted position, then prunes the front.
// Samples with equal timestamps keep arrival order.
func (buf *Buffer) Append(b Buffered) {
	n := len(buf.samples)
	if n == 0 || buf.samples[n-1].TS <= b.TS {
		buf.samples = append(buf.samples, b)
	} else {
		i := sort.Search(n, func(i int) bool { return buf.samples[i].TS > b.TS })
		buf.samples = append(buf.samples, Buffered{})
		copy(buf.samples[i+1:], buf.samples[i:])
		buf.samples[i] = b
	}
	buf.prune()
}

func (buf *Buffer) prune() {
	if len(buf.samples) == 0 {
		return
	}
	latest := buf.samples[len(buf.samples)-1].TS
	drop := 0
	for drop < len(buf.samples) && latest-buf.samples[drop].TS > buf.horizon {
		drop++
	}
	if drop > 0 {
		buf.samples = append(buf.samples[:0], buf.samples[drop:]...)
	}
}

// Latest returns the newest buffered timestamp.
func (buf *Buffer) Latest() (float64, bool) {
	if len(buf.samples) == 0 {
		return 0, false
	}
	return buf.samples[len(buf.samples)-1].TS, true
}

// Reset empties the buffer.
func (buf *Buffer) Reset() {
	buf.samples = buf.samples[:0]
}

// Len returns the number of buffered samples.
func (buf *Buffer) Len() int {
	return len(buf.samples)
}

// Recent returns up to k of the newest samples, oldest first. The slice
// aliases the buffer and must not be retained across Append.
func (buf *Buffer) Recent(k int) []Buffered {
	if k > len(buf.samples) {
		k = len(buf.samples)
	}
	if k <= 0 {
		return nil
	}
	return buf.samples[len(buf.samples)-k:]
}

// Smooth returns the median speed and power over the newest k samples.
func (buf *Buffer) Smooth(k int) (speedMps, powerW float64) {
	recent := buf.Recent(k)
	speeds := make([]float64, len(recent))
	powers := make([]float64, len(recent))
	for i, r := range recent {
		speeds[i] = r.SpeedMps
		powers[i] = r.PowerW
	}
	return Median(speeds), Median(powers)
}

// Median returns the median of values, averaging the two middle values for
// even counts. The input is not modified. An empty slice yields 0.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
