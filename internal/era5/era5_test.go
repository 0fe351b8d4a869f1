package era5

import (
	"math"
	"time"
)

var (
	t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

// testDataset is a 3 timesteps x 3 latitudes x 4 longitudes wind field on a
// 0-360 longitude axis with descending latitudes, like ERA5.
//
// u10 encodes its position as t*100 + i*10 + j, v10 is the negated u10.
func testDataset() *Dataset {
	d := NewDataset([]time.Time{t0, t1, t2}, []float64{50, 49, 48}, []float64{0, 90, 180, 270})
	u := &Variable{Name: "u10", Attrs: map[string]string{"units": "m s**-1", "long_name": "10 metre U wind component"}}
	v := &Variable{Name: "v10", Attrs: map[string]string{"units": "m s**-1"}}
	for t := 0; t < 3; t++ {
		ug := make([][]float32, 3)
		vg := make([][]float32, 3)
		for i := 0; i < 3; i++ {
			ug[i] = make([]float32, 4)
			vg[i] = make([]float32, 4)
			for j := 0; j < 4; j++ {
				x := float32(t*100 + i*10 + j)
				ug[i][j] = x
				vg[i][j] = -x
			}
		}
		u.Values = append(u.Values, ug)
		v.Values = append(v.Values, vg)
	}
	d.Add(u)
	d.Add(v)
	return d
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-4
}
