// Package geo maps GPS fixes onto the one-dimensional track coordinate.
//
// A fix is first flattened into a local planar frame anchored at the
// session's GPS origin (equirectangular approximation, valid at track
// scale), then projected onto the track centreline polyline to obtain the
// arc-length position s and the signed lateral offset d.
package geo
