package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rtm0/era5wind/internal/catalog"
	"github.com/rtm0/era5wind/internal/era5"
	"github.com/rtm0/era5wind/internal/region"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// writeFixture writes a small 0-360 longitude wind file over north-west
// Scotland with two hourly timesteps.
func writeFixture(t *testing.T) string {
	t.Helper()
	times := []time.Time{t0, t0.Add(time.Hour)}
	lat := []float64{58, 57.75, 57.5}
	lon := []float64{355.5, 355.75, 356}
	d := era5.NewDataset(times, lat, lon)
	for _, name := range []string{"u10", "v10"} {
		v := &era5.Variable{
			Name:   name,
			Attrs:  map[string]string{"units": "m s**-1"},
			Values: make([][][]float32, len(times)),
		}
		for k := range times {
			v.Values[k] = make([][]float32, len(lat))
			for i := range lat {
				v.Values[k][i] = make([]float32, len(lon))
				for j := range lon {
					val := float32(5 + k + i + j)
					if name == "v10" {
						val = -val
					}
					v.Values[k][i][j] = val
				}
			}
		}
		d.Add(v)
	}
	path := filepath.Join(t.TempDir(), "era5.nc")
	if err := era5.WriteNetCDF(path, d); err != nil {
		t.Fatalf("cannot write fixture: %s", err)
	}
	return path
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"fetch", "list", "plot", "animate", "export", "subset", "renders"} {
		if _, ok := lookup(name); !ok {
			t.Errorf("command %q is not registered", name)
		}
	}
	if _, ok := lookup("exporter"); ok {
		t.Error("unexpected command")
	}
}

func TestParseTime(t *testing.T) {
	f := func(s string, end bool, want time.Time) {
		t.Helper()
		got, err := parseTime(s, end)
		if err != nil {
			t.Fatalf("parseTime(%q) failed: %s", s, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parseTime(%q, %v) = %s; want %s", s, end, got, want)
		}
	}
	f("", false, time.Time{})
	f("2024-01-01", false, t0)
	f("2024-01-01", true, t0.Add(24*time.Hour-time.Nanosecond))
	f("2024-01-01T06", true, t0.Add(6*time.Hour))
	f("2024-01-01T06:30", false, t0.Add(6*time.Hour+30*time.Minute))
	f("2024-01-01T07:00:00+01:00", false, t0.Add(6*time.Hour))

	if _, err := parseTime("01/01/2024", false); err == nil {
		t.Fatal("expected an error")
	}
}

func TestSelectionOptions(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		s := selection{vars: "u10,v10=north", from: "2024-01-01", to: "2024-01-02", region: "57,58,-5,-4", padKm: 10, step: 1, convertLon: true}
		opts, err := s.options()
		if err != nil {
			t.Fatalf("options failed: %s", err)
		}
		if len(opts.Variables) != 2 || opts.Variables[1].Name != "north" {
			t.Fatalf("unexpected variables %+v", opts.Variables)
		}
		if opts.Region.LatMin >= 57 || opts.Region.LonMax <= -4 {
			t.Fatalf("expected a padded region, got %s", opts.Region)
		}
		if !opts.End.After(t0.Add(47 * time.Hour)) {
			t.Fatalf("expected the end of the day, got %s", opts.End)
		}
	})

	for name, s := range map[string]selection{
		"step":     {step: 0},
		"reversed": {step: 1, from: "2024-01-02", to: "2024-01-01"},
		"region":   {step: 1, region: "58,57,0,1"},
		"vars":     {step: 1, vars: "u10,u10"},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := s.options(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestArtifactName(t *testing.T) {
	rg := region.Region{LatMin: 57, LatMax: 58, LonMin: -5, LonMax: -4}
	f := func(times []time.Time, want string) {
		t.Helper()
		if got := artifactName("wind", rg, times, ".gif"); got != want {
			t.Fatalf("artifactName = %q; want %q", got, want)
		}
	}
	f(nil, "wind-gfhz1.gif")
	f([]time.Time{t0}, "wind-gfhz1-20240101T00.gif")
	f([]time.Time{t0, t0.Add(time.Hour)}, "wind-gfhz1-20240101T00-20240101T01.gif")
}

func TestExportCSV(t *testing.T) {
	fx := writeFixture(t)
	out := filepath.Join(t.TempDir(), "wind.csv")
	err := runExport(context.Background(), []string{"-file", fx, "-o", out, "-region", "57,58,-5,-4"})
	if err != nil {
		t.Fatalf("export failed: %s", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1+2*3*3 {
		t.Fatalf("expected 19 lines, got %d", len(lines))
	}
	if lines[0] != "timestamp,la,lo,u,v,ws,wd" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "1704067200000,58.00,-4.50,5.00,-5.00,7.07,") {
		t.Fatalf("unexpected first record %q", lines[1])
	}
}

func TestExportStdout(t *testing.T) {
	fx := writeFixture(t)
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	stdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = stdout }()

	var buf bytes.Buffer
	copied := make(chan error, 1)
	go func() {
		_, err := io.Copy(&buf, r)
		copied <- err
	}()
	err = runExport(context.Background(), []string{"-file", fx, "-v"})
	os.Stdout = stdout
	w.Close()
	if cerr := <-copied; cerr != nil {
		t.Fatal(cerr)
	}
	r.Close()
	if err != nil {
		t.Fatalf("export failed: %s", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1+2*3*3 {
		t.Fatalf("expected 19 lines on stdout, got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != "timestamp,la,lo,u,v,ws,wd" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	for _, l := range lines {
		if strings.Contains(l, "level=") {
			t.Fatalf("log line on stdout: %q", l)
		}
	}
}

func TestExportUnknownFormat(t *testing.T) {
	fx := writeFixture(t)
	err := runExport(context.Background(), []string{"-file", fx, "-format", "xml", "-o", filepath.Join(t.TempDir(), "x")})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestSubsetDerive(t *testing.T) {
	fx := writeFixture(t)
	out := filepath.Join(t.TempDir(), "subset.nc")
	if err := runSubset(context.Background(), []string{"-file", fx, "-o", out, "-derive", "-step", "2"}); err != nil {
		t.Fatalf("subset failed: %s", err)
	}
	sc, err := era5.Open(out)
	if err != nil {
		t.Fatalf("cannot open subset: %s", err)
	}
	defer sc.Close()
	if got := strings.Join(sc.Variables(), ","); got != "u10,v10,wind_speed,wind_direction" {
		t.Fatalf("unexpected variables %q", got)
	}
	if len(sc.Latitudes()) != 2 || len(sc.Longitudes()) != 2 {
		t.Fatalf("expected a 2x2 grid, got %dx%d", len(sc.Latitudes()), len(sc.Longitudes()))
	}
	if lon := sc.Longitudes(); lon[0] != -4.5 || lon[1] != -4 {
		t.Fatalf("unexpected longitudes %v", lon)
	}

	if err := runSubset(context.Background(), []string{"-file", fx, "-o", fx}); err == nil {
		t.Fatal("expected an error when overwriting the source")
	}
}

func TestPlotRecordsRender(t *testing.T) {
	fx := writeFixture(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "catalog.db")
	out := filepath.Join(dir, "wind.png")
	args := []string{"-file", fx, "-o", out, "-catalog", db, "-t", "1", "-width", "8", "-height", "6"}
	if err := runPlot(context.Background(), args); err != nil {
		t.Fatalf("plot failed: %s", err)
	}
	if fi, err := os.Stat(out); err != nil || fi.Size() == 0 {
		t.Fatalf("expected a png, got %v", err)
	}

	cat, err := catalog.Open(db)
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()
	renders, err := cat.ListRenders(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(renders) != 1 || renders[0].Kind != "plot" || renders[0].Path != out || renders[0].Source != fx {
		t.Fatalf("unexpected renders %+v", renders)
	}
	if err := runRenders(context.Background(), []string{"-catalog", db}); err != nil {
		t.Fatalf("renders failed: %s", err)
	}

	if err := runPlot(context.Background(), []string{"-file", fx, "-catalog", "", "-t", "5"}); !errors.Is(err, era5.ErrTimestepRange) {
		t.Fatalf("expected ErrTimestepRange, got %v", err)
	}
}

func TestPublishFlagsS3Options(t *testing.T) {
	parse := func(args ...string) publishFlags {
		t.Helper()
		var p publishFlags
		fs := newFlagSet("test")
		p.register(fs)
		if err := fs.Parse(args); err != nil {
			t.Fatal(err)
		}
		return p
	}

	p := parse("-bucket", "renders", "-s3-endpoint", "http://localhost:9000", "-s3-path-style",
		"-s3-access-key", "minio", "-s3-secret-key", "minio123", "-s3-prefix", "wind/")
	opts, err := p.s3Options()
	if err != nil {
		t.Fatalf("s3Options failed: %s", err)
	}
	if opts.AccessKey != "minio" || opts.SecretKey != "minio123" {
		t.Fatalf("credentials not passed through: %+v", opts)
	}
	if opts.Endpoint != "http://localhost:9000" || !opts.ForcePathStyle || opts.Prefix != "wind/" {
		t.Fatalf("unexpected options %+v", opts)
	}

	p = parse()
	if opts, err := p.s3Options(); err != nil || opts.AccessKey != "" || opts.SecretKey != "" {
		t.Fatalf("expected no static credentials, got %+v, %v", opts, err)
	}
	p = parse("-s3-access-key", "minio")
	if _, err := p.s3Options(); err == nil {
		t.Fatal("expected an error for an access key without a secret")
	}
}

type fakeInserter struct {
	mu      sync.Mutex
	batches []int
	failAt  int
}

func (f *fakeInserter) Insert(_ context.Context, recs []era5.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, len(recs))
	if f.failAt > 0 && len(f.batches) >= f.failAt {
		return errors.New("insert failed")
	}
	return nil
}

func TestPush(t *testing.T) {
	fx := writeFixture(t)
	var c common
	var sel = selection{file: fx, step: 1, convertLon: true}
	d, err := sel.load(context.Background(), c.logger(), nil)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("batches", func(t *testing.T) {
		f := &fakeInserter{}
		if err := push(context.Background(), c.logger(), f, d, "u10", "v10", 2, 4); err != nil {
			t.Fatalf("push failed: %s", err)
		}
		total := 0
		for _, n := range f.batches {
			if n > 4 {
				t.Fatalf("batch of %d records exceeds the limit", n)
			}
			total += n
		}
		if total != 18 || len(f.batches) != 6 {
			t.Fatalf("expected 18 records in 6 batches, got %d in %d", total, len(f.batches))
		}
	})

	t.Run("error", func(t *testing.T) {
		f := &fakeInserter{failAt: 1}
		if err := push(context.Background(), c.logger(), f, d, "u10", "v10", 1, 4); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("unknown variable", func(t *testing.T) {
		err := push(context.Background(), c.logger(), &fakeInserter{}, d, "u100", "v10", 1, 4)
		if !errors.Is(err, era5.ErrUnknownVariable) {
			t.Fatalf("expected ErrUnknownVariable, got %v", err)
		}
	})
}
