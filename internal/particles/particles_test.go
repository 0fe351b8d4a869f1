package particles

import (
	"math"
	"testing"
	"time"
)

func constant(steps, n, m int, val float32) [][][]float32 {
	f := make([][][]float32, steps)
	for t := range f {
		f[t] = make([][]float32, n)
		for i := range f[t] {
			f[t][i] = make([]float32, m)
			for j := range f[t][i] {
				f[t][i][j] = val
			}
		}
	}
	return f
}

func ramp(steps int, lat, lon []float64) [][][]float32 {
	f := make([][][]float32, steps)
	for t := range f {
		f[t] = make([][]float32, len(lat))
		for i, la := range lat {
			f[t][i] = make([]float32, len(lon))
			for j, lo := range lon {
				f[t][i][j] = float32(100*t) + float32(la) + 2*float32(lo)
			}
		}
	}
	return f
}

func TestNewGrid(t *testing.T) {
	lat := []float64{50, 49, 48}
	lon := []float64{0, 1}
	if _, err := NewGrid(lat, lon, constant(1, 3, 2, 1), constant(1, 3, 2, 1)); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err := NewGrid(lat, lon, constant(1, 2, 2, 1), constant(1, 2, 2, 1)); err == nil {
		t.Fatal("expected an error for mismatched latitudes")
	}
	if _, err := NewGrid(lat, lon, constant(2, 3, 2, 1), constant(1, 3, 2, 1)); err == nil {
		t.Fatal("expected an error for mismatched timesteps")
	}
	if _, err := NewGrid([]float64{50, 48, 49}, lon, constant(1, 3, 2, 1), constant(1, 3, 2, 1)); err == nil {
		t.Fatal("expected an error for a non monotonic axis")
	}
}

func TestSample(t *testing.T) {
	lat := []float64{50, 49, 48}
	lon := []float64{0, 1, 2}
	g, err := NewGrid(lat, lon, ramp(2, lat, lon), ramp(2, lat, lon))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	cases := []struct {
		name          string
		t, lat, lon   float64
		expected      float64
		expectedValid bool
	}{
		{"grid point", 0, 49, 1, 51, true},
		{"between latitudes", 0, 48.5, 0, 48.5, true},
		{"inside cell", 0, 49.25, 1.5, 52.25, true},
		{"edge", 0, 50, 2, 54, true},
		{"between timesteps", 0.5, 49, 1, 101, true},
		{"outside latitude", 0, 50.1, 1, 0, false},
		{"outside longitude", 0, 49, -0.1, 0, false},
		{"outside time", 1.5, 49, 1, 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			u, v, ok := g.Sample(c.t, c.lat, c.lon)
			if ok != c.expectedValid {
				t.Fatalf("expected ok=%v, got %v", c.expectedValid, ok)
			}
			if ok && (math.Abs(u-c.expected) > 1e-9 || math.Abs(v-c.expected) > 1e-9) {
				t.Fatalf("expected %v, got u=%v v=%v", c.expected, u, v)
			}
		})
	}

	g.u[0][1][1] = float32(math.NaN())
	if _, _, ok := g.Sample(0, 49.5, 0.5); ok {
		t.Fatal("expected a sample next to a missing value to be invalid")
	}
}

func TestSimAdvection(t *testing.T) {
	lat := []float64{-10, 0, 10}
	lon := []float64{-10, 0, 10}
	// 11.132 m/s eastwards moves 0.1 degree per 1000s on the equator
	g, err := NewGrid(lat, lon, constant(1, 3, 3, 11.132), constant(1, 3, 3, 0))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	s := NewSim(g, Config{Count: 1, MaxAge: 1000, Step: 1000 * time.Second, Seed: 7})
	s.ps[0] = particle{lat: 0, lon: 0}

	segs := s.Step(0)
	if len(segs) != 1 {
		t.Fatalf("expected one segment, got %d", len(segs))
	}
	seg := segs[0]
	if math.Abs(seg.Lon1-0.1) > 1e-6 || seg.Lat1 != 0 {
		t.Fatalf("unexpected segment %+v", seg)
	}
	if math.Abs(seg.Speed-11.132) > 1e-4 {
		t.Fatalf("unexpected speed %v", seg.Speed)
	}

	s.ps[0] = particle{lat: 0, lon: 9.95}
	if segs := s.Step(0); len(segs) != 1 {
		t.Fatalf("expected one segment, got %d", len(segs))
	}
	if segs := s.Step(0); len(segs) != 0 {
		t.Fatalf("expected the particle to respawn after leaving the grid, got %v", segs)
	}
	p := s.ps[0]
	if p.age != 0 || p.lat < -10 || p.lat > 10 || p.lon < -10 || p.lon > 10 {
		t.Fatalf("unexpected respawned particle %+v", p)
	}
}

func TestSimAging(t *testing.T) {
	lat := []float64{0, 1}
	lon := []float64{0, 1}
	g, _ := NewGrid(lat, lon, constant(1, 2, 2, 0), constant(1, 2, 2, 0))
	s := NewSim(g, Config{Count: 1, MaxAge: 2, Seed: 3})
	s.ps[0].age = 0
	if n := len(s.Step(0)); n != 1 {
		t.Fatalf("expected a segment, got %d", n)
	}
	if n := len(s.Step(0)); n != 1 {
		t.Fatalf("expected a segment, got %d", n)
	}
	if n := len(s.Step(0)); n != 0 {
		t.Fatalf("expected the particle to respawn at max age, got %d segments", n)
	}
}

func TestSimDeterministic(t *testing.T) {
	lat := []float64{40, 45, 50}
	lon := []float64{0, 5, 10}
	u, v := ramp(2, lat, lon), ramp(2, lat, lon)
	run := func() [][]Segment {
		g, _ := NewGrid(lat, lon, u, v)
		return NewSim(g, Config{Count: 50, MaxAge: 5, Step: time.Minute, Seed: 42}).Run(10)
	}
	a, b := run(), run()
	if len(a) != 10 {
		t.Fatalf("expected 10 frames, got %d", len(a))
	}
	for f := range a {
		if len(a[f]) != len(b[f]) {
			t.Fatalf("frame %d: segment counts differ", f)
		}
		for k := range a[f] {
			if a[f][k] != b[f][k] {
				t.Fatalf("frame %d segment %d differs: %+v vs %+v", f, k, a[f][k], b[f][k])
			}
		}
	}
}
