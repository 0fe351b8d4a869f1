package era5

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rtm0/era5wind/internal/region"
)

func process(t *testing.T, opts Options) *Processor {
	t.Helper()
	p := NewProcessor(testDataset().AsSource(), opts)
	if err := p.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %s", err)
	}
	return p
}

func TestProcess(t *testing.T) {
	t.Run("longitude conversion sorts columns", func(t *testing.T) {
		p := process(t, DefaultOptions())
		d, err := p.Dataset()
		if err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		expected := []float64{-180, -90, 0, 90}
		for i, lo := range expected {
			if d.Lon[i] != lo {
				t.Fatalf("expected longitudes %v, got %v", expected, d.Lon)
			}
		}
		// column -180 comes from source longitude 180 (j=2)
		if got := d.Vars["u10"].Values[0][0][0]; got != 2 {
			t.Fatalf("expected 2, got %v", got)
		}
		if got := d.Vars["u10"].Values[2][1][3]; got != 211 {
			t.Fatalf("expected 211, got %v", got)
		}
	})

	t.Run("no conversion keeps source order", func(t *testing.T) {
		opts := DefaultOptions()
		opts.ConvertLongitude = false
		d, _ := process(t, opts).Dataset()
		if d.Lon[0] != 0 || d.Lon[3] != 270 {
			t.Fatalf("unexpected longitudes %v", d.Lon)
		}
	})

	t.Run("date range is inclusive", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Start = t1
		opts.End = t2
		d, _ := process(t, opts).Dataset()
		if len(d.Times) != 2 || !d.Times[0].Equal(t1) || !d.Times[1].Equal(t2) {
			t.Fatalf("unexpected times %v", d.Times)
		}
		if got := d.Vars["u10"].Values[0][0][2]; got != 100 {
			t.Fatalf("expected first timestep to be t1, got %v", got)
		}
	})

	t.Run("region crop is inclusive", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Region = region.Region{LatMin: 48, LatMax: 49, LonMin: -90, LonMax: 0}
		d, _ := process(t, opts).Dataset()
		if len(d.Lat) != 2 || d.Lat[0] != 49 || d.Lat[1] != 48 {
			t.Fatalf("unexpected latitudes %v", d.Lat)
		}
		if len(d.Lon) != 2 || d.Lon[0] != -90 || d.Lon[1] != 0 {
			t.Fatalf("unexpected longitudes %v", d.Lon)
		}
		// lat 49 is i=1, lon -90 is source 270, j=3
		if got := d.Vars["v10"].Values[0][0][0]; got != -13 {
			t.Fatalf("expected -13, got %v", got)
		}
	})

	t.Run("variables are selected and renamed", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Variables = []VarSpec{{Source: "v10", Name: "north"}}
		d, _ := process(t, opts).Dataset()
		names := d.Names()
		if len(names) != 1 || names[0] != "north" {
			t.Fatalf("unexpected variables %v", names)
		}
		if d.Vars["north"].Units() != "m s**-1" {
			t.Fatalf("expected attributes to be copied, got %v", d.Vars["north"].Attrs)
		}
	})

	t.Run("attributes can be dropped", func(t *testing.T) {
		opts := DefaultOptions()
		opts.IncludeAttributes = false
		d, _ := process(t, opts).Dataset()
		if len(d.Vars["u10"].Attrs) != 0 {
			t.Fatalf("expected no attributes, got %v", d.Vars["u10"].Attrs)
		}
	})
}

func TestProcessErrors(t *testing.T) {
	cases := map[string]func(*Options){
		"unknown variable": func(o *Options) { o.Variables = []VarSpec{{Source: "t2m", Name: "t2m"}} },
		"empty date range": func(o *Options) { o.Start = t2.Add(1); o.End = t2.Add(2) },
		"empty region":     func(o *Options) { o.Region = region.Region{LatMin: 10, LatMax: 20, LonMin: 0, LonMax: 10} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			opts := DefaultOptions()
			mutate(&opts)
			p := NewProcessor(testDataset().AsSource(), opts)
			if err := p.Process(context.Background()); err == nil {
				t.Fatal("expected an error")
			}
			if _, err := p.Dataset(); !errors.Is(err, ErrNotProcessed) {
				t.Fatalf("expected ErrNotProcessed, got %v", err)
			}
		})
	}

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := NewProcessor(testDataset().AsSource(), DefaultOptions())
		if err := p.Process(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestExtractTimestep(t *testing.T) {
	p := NewProcessor(testDataset().AsSource(), DefaultOptions())
	if _, err := p.ExtractTimestep(0, []string{"u10"}, true); !errors.Is(err, ErrNotProcessed) {
		t.Fatalf("expected ErrNotProcessed, got %v", err)
	}
	if err := p.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %s", err)
	}

	snap, err := p.ExtractTimestep(1, []string{"u10", "v10"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !snap.Time.Equal(t1) {
		t.Fatalf("expected %v, got %v", t1, snap.Time)
	}
	if len(snap.Lat) != 3 || len(snap.Lon) != 4 {
		t.Fatalf("expected coordinates, got %v %v", snap.Lat, snap.Lon)
	}
	u := snap.Fields["u10"]
	if u.Units != "m s**-1" || u.Values[0][2] != 100 {
		t.Fatalf("unexpected field %+v", u)
	}

	snap, err = p.ExtractTimestep(0, []string{"u10"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if snap.Lat != nil || snap.Lon != nil {
		t.Fatal("did not expect coordinates")
	}

	if _, err := p.ExtractTimestep(3, []string{"u10"}, true); !errors.Is(err, ErrTimestepRange) {
		t.Fatalf("expected ErrTimestepRange, got %v", err)
	}
	if _, err := p.ExtractTimestep(0, []string{"t2m"}, true); !errors.Is(err, ErrUnknownVariable) {
		t.Fatalf("expected ErrUnknownVariable, got %v", err)
	}
	if _, err := p.ExtractTimestep(0, nil, true); err == nil {
		t.Fatal("expected an error for an empty selection")
	}
}

func TestCalculateWindSpeed(t *testing.T) {
	p := NewProcessor(testDataset().AsSource(), DefaultOptions())
	if err := p.CalculateWindSpeed("", "", ""); !errors.Is(err, ErrNotProcessed) {
		t.Fatalf("expected ErrNotProcessed, got %v", err)
	}
	if err := p.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %s", err)
	}
	if err := p.CalculateWindSpeed("u10", "w10", ""); !errors.Is(err, ErrUnknownVariable) {
		t.Fatalf("expected ErrUnknownVariable, got %v", err)
	}
	if err := p.CalculateWindSpeed("", "", ""); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	d, _ := p.Dataset()
	ws, ok := d.Vars["wind_speed"]
	if !ok {
		t.Fatalf("wind_speed not added, have %v", d.Names())
	}
	if ws.Attrs["units"] != "m s**-1" || ws.Attrs["long_name"] != "Wind Speed calculated from u10 and v10" {
		t.Fatalf("unexpected attributes %v", ws.Attrs)
	}
	u := d.Vars["u10"].Values[2][1][1]
	if !approx(float64(ws.Values[2][1][1]), math.Sqrt2*float64(u)) {
		t.Fatalf("unexpected speed %v for u %v", ws.Values[2][1][1], u)
	}

	if err := p.CalculateWindDirection("", "", ""); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	wd := d.Vars["wind_direction"]
	if wd.Attrs["units"] != "degrees" || !approx(float64(wd.Values[2][1][1]), 315) {
		t.Fatalf("unexpected direction %v %v", wd.Attrs, wd.Values[2][1][1])
	}
}

func TestCalculateWindSpeedDefaultUnits(t *testing.T) {
	d := testDataset()
	d.Vars["u10"].Attrs = map[string]string{}
	p := NewProcessor(d.AsSource(), DefaultOptions())
	if err := p.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %s", err)
	}
	if err := p.CalculateWindSpeed("u10", "v10", "speed"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	out, _ := p.Dataset()
	if out.Vars["speed"].Attrs["units"] != "m s**-1" {
		t.Fatalf("expected default units, got %v", out.Vars["speed"].Attrs)
	}
}

func TestSubsample(t *testing.T) {
	p := NewProcessor(testDataset().AsSource(), DefaultOptions())
	if _, err := p.Subsample(2); !errors.Is(err, ErrNotProcessed) {
		t.Fatalf("expected ErrNotProcessed, got %v", err)
	}
	if err := p.Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %s", err)
	}
	if _, err := p.Subsample(0); err == nil {
		t.Fatal("expected an error for step 0")
	}

	sub, err := p.Subsample(2)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(sub.Lat) != 2 || sub.Lat[0] != 50 || sub.Lat[1] != 48 {
		t.Fatalf("unexpected latitudes %v", sub.Lat)
	}
	if len(sub.Lon) != 2 || sub.Lon[0] != -180 || sub.Lon[1] != 0 {
		t.Fatalf("unexpected longitudes %v", sub.Lon)
	}
	// lat 48 (i=2), lon 0 (j=0)
	if got := sub.Vars["u10"].Values[1][1][1]; got != 120 {
		t.Fatalf("expected 120, got %v", got)
	}

	d, _ := p.Dataset()
	if len(d.Lat) != 3 || len(d.Lon) != 4 {
		t.Fatal("subsampling must not modify the processed dataset")
	}
	sub.Vars["u10"].Attrs["units"] = "knots"
	if got := d.Vars["u10"].Attrs["units"]; got != "m s**-1" {
		t.Fatalf("subsample shares attributes with the processed dataset, units=%q", got)
	}
}

func TestVariableRange(t *testing.T) {
	v := &Variable{Values: [][][]float32{{{1, float32(math.NaN())}, {-3, 7}}}}
	lo, hi, ok := v.Range()
	if !ok || lo != -3 || hi != 7 {
		t.Fatalf("unexpected range %v %v %v", lo, hi, ok)
	}
	v = &Variable{Values: [][][]float32{{{float32(math.NaN())}}}}
	if _, _, ok := v.Range(); ok {
		t.Fatal("expected no range for an all-NaN variable")
	}
}
