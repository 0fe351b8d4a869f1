package render

import (
	"errors"
	"math"

	"github.com/rtm0/era5wind/internal/era5"
)

// speedGrid adapts a [lat][lon] field to plotter.GridXYZ with latitudes
// increasing upwards whatever the order of the source axis.
type speedGrid struct {
	lat  []float64
	lon  []float64
	z    [][]float32
	flip bool
}

func newSpeedGrid(lat, lon []float64, z [][]float32) (*speedGrid, error) {
	if len(lat) < 2 || len(lon) < 2 {
		return nil, errors.New("at least 2x2 grid points are needed to plot a field")
	}
	if lon[len(lon)-1] < lon[0] {
		return nil, errors.New("longitudes must be ascending")
	}
	return &speedGrid{lat: lat, lon: lon, z: z, flip: lat[0] > lat[len(lat)-1]}, nil
}

func (g *speedGrid) row(r int) int {
	if g.flip {
		return len(g.lat) - 1 - r
	}
	return r
}

func (g *speedGrid) Dims() (c, r int)   { return len(g.lon), len(g.lat) }
func (g *speedGrid) Z(c, r int) float64 { return float64(g.z[g.row(r)][c]) }
func (g *speedGrid) X(c int) float64    { return g.lon[c] }
func (g *speedGrid) Y(r int) float64    { return g.lat[g.row(r)] }

// speedOf computes the wind speed grid from u and v.
func speedOf(u, v [][]float32) [][]float32 {
	out := make([][]float32, len(u))
	for i := range u {
		out[i] = make([]float32, len(u[i]))
		for j := range u[i] {
			out[i][j] = era5.Speed(u[i][j], v[i][j])
		}
	}
	return out
}

// blend linearly interpolates between two grids.
func blend(a, b [][]float32, f float64) [][]float32 {
	if f == 0 {
		return a
	}
	out := make([][]float32, len(a))
	for i := range a {
		out[i] = make([]float32, len(a[i]))
		for j := range a[i] {
			out[i][j] = float32(float64(a[i][j]) + (float64(b[i][j])-float64(a[i][j]))*f)
		}
	}
	return out
}

// gridRange returns the minimum and maximum of a grid ignoring NaN.
func gridRange(z [][]float32) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, row := range z {
		for _, x := range row {
			f := float64(x)
			if math.IsNaN(f) {
				continue
			}
			lo, hi, ok = math.Min(lo, f), math.Max(hi, f), true
		}
	}
	return lo, hi, ok
}
