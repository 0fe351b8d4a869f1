package era5

import "math"

// Speed returns the magnitude of the wind vector (u, v).
func Speed(u, v float32) float32 {
	return float32(math.Hypot(float64(u), float64(v)))
}

// Direction returns the meteorological wind direction in degrees: the
// direction the wind blows from, clockwise from north, in [0, 360). Calm wind
// is reported as 0.
func Direction(u, v float32) float32 {
	if u == 0 && v == 0 {
		return 0
	}
	d := math.Atan2(-float64(u), -float64(v)) * 180 / math.Pi
	if d < 0 {
		d += 360
	}
	// narrowing can round values just below 360 up to 360
	r := float32(d)
	if r >= 360 {
		r -= 360
	}
	return r
}
