package geo

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// EarthRadiusMeters is the mean Earth radius used by the local projection.
const EarthRadiusMeters = 6371000.0

// minSegmentLength2 skips vertex pairs that are effectively coincident.
const minSegmentLength2 = 1e-9

func deg2rad(d float64) float64 {
	return d * math.Pi / 180
}

// ToLocalXY converts a latitude/longitude (degrees) into metres east (x) and
// north (y) of the origin (lat0, lon0).
func ToLocalXY(lat, lon, lat0, lon0 float64) (x, y float64) {
	lat0Rad := deg2rad(lat0)
	x = (deg2rad(lon) - deg2rad(lon0)) * math.Cos(lat0Rad) * EarthRadiusMeters
	y = (deg2rad(lat) - lat0Rad) * EarthRadiusMeters
	return x, y
}

// ProjectToPolyline finds the closest point on the track centreline to (x, y)
// and returns its arc-length s in [0, Length) and the signed lateral offset
// d (positive to the left of the direction of travel).
//
// Every segment is evaluated; when two segments are exactly equally close
// the one with the lower index wins. A track made only of degenerate
// segments projects to (0, 0).
func ProjectToPolyline(x, y float64, t *Track) (s, d float64) {
	p := r2.Vec{X: x, Y: y}

	bestDist2 := math.Inf(1)
	bestS := 0.0
	bestSign := 1.0

	for i := 0; i+1 < len(t.X); i++ {
		a := r2.Vec{X: t.X[i], Y: t.Y[i]}
		b := r2.Vec{X: t.X[i+1], Y: t.Y[i+1]}
		v := r2.Sub(b, a)

		vv := r2.Norm2(v)
		if vv < minSegmentLength2 {
			continue
		}

		w := r2.Sub(p, a)
		u := math.Max(0, math.Min(1, r2.Dot(w, v)/vv))

		closest := r2.Add(a, r2.Scale(u, v))
		dist2 := r2.Norm2(r2.Sub(p, closest))

		if dist2 < bestDist2 {
			bestDist2 = dist2
			bestS = t.S[i] + u*(t.S[i+1]-t.S[i])
			if r2.Cross(v, w) >= 0 {
				bestSign = 1
			} else {
				bestSign = -1
			}
		}
	}

	if math.IsInf(bestDist2, 1) {
		return 0, 0
	}

	return wrap(bestS, t.Length), bestSign * math.Sqrt(bestDist2)
}

// ForwardDistance is the distance travelled forward along the closed loop
// from sNow to reach sTarget.
func ForwardDistance(sNow, sTarget, length float64) float64 {
	d := sTarget - sNow
	if d < 0 {
		d += length
	}
	return d
}

// wrap folds s into [0, length) on the closed loop.
func wrap(s, length float64) float64 {
	if length <= 0 {
		return s
	}
	s = math.Mod(s, length)
	if s < 0 {
		s += length
	}
	return s
}
