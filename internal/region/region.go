// Package region describes the geographic window a wind field is cropped to.
package region

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/mmcloughlin/geohash"
)

const (
	kmPerDegLat = 110.574
	kmPerDegLon = 111.320
)

// Region is an inclusive latitude/longitude box in degrees.
//
// Longitudes may be given either in [-180, 180] or in [0, 360] so that a region
// can be applied to a dataset whose longitudes have not been converted.
type Region struct {
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
}

// Global returns a region that matches every point of either longitude
// convention.
func Global() Region {
	return Region{LatMin: -90, LatMax: 90, LonMin: -180, LonMax: 360}
}

// Parse parses "latMin,latMax,lonMin,lonMax". An empty string yields Global().
func Parse(s string) (Region, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Global(), nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("region %q: want latMin,latMax,lonMin,lonMax, found %d values", s, len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Region{}, fmt.Errorf("region %q: %w", s, err)
		}
		v[i] = f
	}
	r := Region{LatMin: v[0], LatMax: v[1], LonMin: v[2], LonMax: v[3]}
	if err := r.Validate(); err != nil {
		return Region{}, err
	}
	return r, nil
}

// Validate checks the bounds.
func (r Region) Validate() error {
	if r.LatMin < -90 || r.LatMax > 90 {
		return fmt.Errorf("latitude range [%g, %g] is outside [-90, 90]", r.LatMin, r.LatMax)
	}
	if r.LatMin > r.LatMax {
		return fmt.Errorf("latitude min %g is greater than max %g", r.LatMin, r.LatMax)
	}
	if r.LonMin < -180 || r.LonMax > 360 {
		return fmt.Errorf("longitude range [%g, %g] is outside [-180, 360]", r.LonMin, r.LonMax)
	}
	if r.LonMin > r.LonMax {
		return fmt.Errorf("longitude min %g is greater than max %g", r.LonMin, r.LonMax)
	}
	return nil
}

func (r Region) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", r.LatMin, r.LatMax, r.LonMin, r.LonMax)
}

// ContainsLat reports whether lat lies within the region, bounds included.
func (r Region) ContainsLat(lat float64) bool {
	return lat >= r.LatMin && lat <= r.LatMax
}

// ContainsLon reports whether lon lies within the region, bounds included.
func (r Region) ContainsLon(lon float64) bool {
	return lon >= r.LonMin && lon <= r.LonMax
}

// Rect returns the region as a spherical rectangle.
func (r Region) Rect() s2.Rect {
	lng := s1.FullInterval()
	if r.LonMax-r.LonMin < 360 {
		lng = s1.IntervalFromEndpoints(NormalizeLongitude(r.LonMin)*math.Pi/180, normalizeHi(r.LonMax)*math.Pi/180)
	}
	return s2.Rect{
		Lat: r1.Interval{Lo: r.LatMin * math.Pi / 180, Hi: r.LatMax * math.Pi / 180},
		Lng: lng,
	}
}

// Center returns the centre of the region.
func (r Region) Center() s2.LatLng {
	return r.Rect().Center()
}

// Geohash encodes the centre of the region with the given number of
// characters. It is used to name artifacts rendered for the region.
func (r Region) Geohash(chars uint) string {
	c := r.Center()
	return geohash.EncodeWithPrecision(c.Lat.Degrees(), c.Lng.Degrees(), chars)
}

// Pad widens the region by km on every side, clamped to valid coordinates.
func (r Region) Pad(km float64) Region {
	dLat := km / kmPerDegLat
	// go with the edge closest to a pole, it needs the widest longitude step
	edge := math.Min(math.Max(math.Abs(r.LatMin), math.Abs(r.LatMax)), 89)
	dLon := km / (math.Cos(edge*math.Pi/180) * kmPerDegLon)
	return Region{
		LatMin: math.Max(r.LatMin-dLat, -90),
		LatMax: math.Min(r.LatMax+dLat, 90),
		LonMin: math.Max(r.LonMin-dLon, -180),
		LonMax: math.Min(r.LonMax+dLon, 360),
	}
}

// NormalizeLongitude maps lon into [-180, 180).
func NormalizeLongitude(lon float64) float64 {
	l := math.Mod(lon+180, 360)
	if l < 0 {
		l += 360
	}
	return l - 180
}

// normalizeHi is NormalizeLongitude except that 180 stays 180, so that an upper
// bound on the antimeridian keeps the interval closed on the east side.
func normalizeHi(lon float64) float64 {
	n := NormalizeLongitude(lon)
	if n == -180 && lon > 0 {
		return 180
	}
	return n
}
