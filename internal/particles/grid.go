// Package particles advects tracer particles through a gridded wind field to
// produce the trails of a windy-style animation.
package particles

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Grid samples u/v wind components by bilinear interpolation in space and
// linear interpolation in time.
type Grid struct {
	lat []float64
	lon []float64
	u   [][][]float32
	v   [][][]float32
}

// NewGrid creates a grid over monotonic latitude and longitude axes. u and v
// are indexed [time][lat][lon].
func NewGrid(lat, lon []float64, u, v [][][]float32) (*Grid, error) {
	if len(lat) == 0 || len(lon) == 0 {
		return nil, errors.New("empty grid")
	}
	if len(u) == 0 || len(u) != len(v) {
		return nil, fmt.Errorf("u and v must have the same non-zero number of timesteps, got %d and %d", len(u), len(v))
	}
	for t := range u {
		if len(u[t]) != len(lat) || len(v[t]) != len(lat) {
			return nil, fmt.Errorf("timestep %d does not have %d latitudes", t, len(lat))
		}
		for i := range u[t] {
			if len(u[t][i]) != len(lon) || len(v[t][i]) != len(lon) {
				return nil, fmt.Errorf("timestep %d row %d does not have %d longitudes", t, i, len(lon))
			}
		}
	}
	if !monotonic(lat) || !monotonic(lon) {
		return nil, errors.New("grid axes must be strictly monotonic")
	}
	return &Grid{lat: lat, lon: lon, u: u, v: v}, nil
}

func monotonic(axis []float64) bool {
	if len(axis) < 2 {
		return true
	}
	asc := axis[1] > axis[0]
	for i := 1; i < len(axis); i++ {
		if asc && axis[i] <= axis[i-1] || !asc && axis[i] >= axis[i-1] {
			return false
		}
	}
	return true
}

// Steps returns the number of timesteps.
func (g *Grid) Steps() int {
	return len(g.u)
}

// Bounds returns the extent of the grid in degrees.
func (g *Grid) Bounds() (latMin, latMax, lonMin, lonMax float64) {
	latMin, latMax = minMax(g.lat)
	lonMin, lonMax = minMax(g.lon)
	return latMin, latMax, lonMin, lonMax
}

func minMax(axis []float64) (float64, float64) {
	a, b := axis[0], axis[len(axis)-1]
	if a > b {
		return b, a
	}
	return a, b
}

// Sample returns the wind at a fractional timestep t and a position. ok is
// false outside the grid or next to a missing value.
func (g *Grid) Sample(t, lat, lon float64) (u, v float64, ok bool) {
	if t < 0 || t > float64(len(g.u)-1) || math.IsNaN(t) {
		return 0, 0, false
	}
	i, fi, ok := axisPos(g.lat, lat)
	if !ok {
		return 0, 0, false
	}
	j, fj, ok := axisPos(g.lon, lon)
	if !ok {
		return 0, 0, false
	}
	t0 := int(math.Floor(t))
	ft := t - float64(t0)
	u0, v0, ok := g.at(t0, i, fi, j, fj)
	if !ok {
		return 0, 0, false
	}
	if ft == 0 {
		return u0, v0, true
	}
	u1, v1, ok := g.at(t0+1, i, fi, j, fj)
	if !ok {
		return 0, 0, false
	}
	return lerp(u0, u1, ft), lerp(v0, v1, ft), true
}

func (g *Grid) at(t, i int, fi float64, j int, fj float64) (float64, float64, bool) {
	u, ok := bilinear(g.u[t], i, fi, j, fj)
	if !ok {
		return 0, 0, false
	}
	v, ok := bilinear(g.v[t], i, fi, j, fj)
	if !ok {
		return 0, 0, false
	}
	return u, v, true
}

func bilinear(f [][]float32, i int, fi float64, j int, fj float64) (float64, bool) {
	i1 := min(i+1, len(f)-1)
	j1 := min(j+1, len(f[0])-1)
	q00, q01 := float64(f[i][j]), float64(f[i][j1])
	q10, q11 := float64(f[i1][j]), float64(f[i1][j1])
	if math.IsNaN(q00) || math.IsNaN(q01) || math.IsNaN(q10) || math.IsNaN(q11) {
		return 0, false
	}
	return lerp(lerp(q00, q01, fj), lerp(q10, q11, fj), fi), true
}

func lerp(a, b, f float64) float64 {
	return a + (b-a)*f
}

// axisPos locates x on a monotonic axis as cell index i and fraction f
// towards i+1.
func axisPos(axis []float64, x float64) (int, float64, bool) {
	n := len(axis)
	if n == 1 {
		return 0, 0, x == axis[0]
	}
	asc := axis[n-1] > axis[0]
	lo, hi := minMax(axis)
	if x < lo || x > hi || math.IsNaN(x) {
		return 0, 0, false
	}
	var k int
	if asc {
		k = sort.SearchFloat64s(axis, x)
	} else {
		k = sort.Search(n, func(k int) bool { return axis[k] <= x })
	}
	if k == 0 {
		return 0, 0, true
	}
	i := k - 1
	return i, (x - axis[i]) / (axis[k] - axis[i]), true
}
