package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/rtm0/era5wind/internal/catalog"
	"github.com/rtm0/era5wind/internal/era5"
	"github.com/rtm0/era5wind/internal/particles"
	"github.com/rtm0/era5wind/internal/publish"
	"github.com/rtm0/era5wind/internal/region"
	"github.com/rtm0/era5wind/internal/render"
)

const defaultCatalog = "era5wind.db"

// artifactName names a render after the geohash of its region and the time
// span it covers.
func artifactName(kind string, rg region.Region, times []time.Time, ext string) string {
	name := fmt.Sprintf("%s-%s", kind, rg.Geohash(5))
	if len(times) > 0 {
		name += "-" + times[0].UTC().Format("20060102T15")
		if len(times) > 1 {
			name += "-" + times[len(times)-1].UTC().Format("20060102T15")
		}
	}
	return name + ext
}

type styleFlags struct {
	title         string
	uVar, vVar    string
	min, max      float64
	arrows        int
	width, height float64
}

func (s *styleFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.title, "title", "", "plot title, \"10 m wind\" by default")
	fs.StringVar(&s.uVar, "uvar", "u10", "eastward wind component")
	fs.StringVar(&s.vVar, "vvar", "v10", "northward wind component")
	fs.Float64Var(&s.min, "min", 0, "lower end of the speed colour scale")
	fs.Float64Var(&s.max, "max", 0, "upper end of the speed colour scale. 0 scales to the data")
	fs.IntVar(&s.arrows, "arrows", 0, "draw an arrow every n grid points. 0 picks a step, negative disables arrows")
	fs.Float64Var(&s.width, "width", 20, "image width in cm")
	fs.Float64Var(&s.height, "height", 14, "image height in cm")
}

func (s *styleFlags) options() render.Options {
	return render.Options{
		Width:     vg.Length(s.width) * vg.Centimeter,
		Height:    vg.Length(s.height) * vg.Centimeter,
		Title:     s.title,
		UVar:      s.uVar,
		VVar:      s.vVar,
		Min:       s.min,
		Max:       s.max,
		ArrowStep: s.arrows,
	}
}

// publishFlags control where a finished render is uploaded and recorded.
type publishFlags struct {
	bucket    string
	s3Region  string
	endpoint  string
	pathStyle bool
	accessKey string
	secretKey string
	prefix    string
	dsn       string
}

func (p *publishFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.bucket, "bucket", "", "S3 bucket to publish the render to. Empty keeps it local")
	fs.StringVar(&p.s3Region, "s3-region", os.Getenv("AWS_REGION"), "S3 region")
	fs.StringVar(&p.endpoint, "s3-endpoint", "", "S3 compatible endpoint instead of AWS")
	fs.BoolVar(&p.pathStyle, "s3-path-style", false, "use path style S3 addressing")
	fs.StringVar(&p.accessKey, "s3-access-key", "", "S3 access key id. Empty uses the AWS credential chain")
	fs.StringVar(&p.secretKey, "s3-secret-key", "", "S3 secret access key")
	fs.StringVar(&p.prefix, "s3-prefix", "", "key prefix of published renders")
	fs.StringVar(&p.dsn, "catalog", defaultCatalog, "catalog database recording renders. Empty disables recording")
}

func (p *publishFlags) s3Options() (publish.S3Options, error) {
	if (p.accessKey == "") != (p.secretKey == "") {
		return publish.S3Options{}, errors.New("-s3-access-key and -s3-secret-key must be set together")
	}
	return publish.S3Options{
		Endpoint:       p.endpoint,
		ForcePathStyle: p.pathStyle,
		AccessKey:      p.accessKey,
		SecretKey:      p.secretKey,
		Prefix:         p.prefix,
	}, nil
}

// finish publishes and records a render at path.
func (p *publishFlags) finish(ctx context.Context, logger *slog.Logger, r catalog.Render) error {
	if p.bucket != "" {
		opts, err := p.s3Options()
		if err != nil {
			return err
		}
		s3, err := publish.NewS3(logger, p.bucket, p.s3Region, opts)
		if err != nil {
			return err
		}
		if r.Location, err = s3.Upload(ctx, r.Path, ""); err != nil {
			return err
		}
	}
	if p.dsn == "" {
		return nil
	}
	cat, err := catalog.Open(p.dsn)
	if err != nil {
		return err
	}
	defer cat.Close()
	rec, err := cat.RecordRender(ctx, r)
	if err != nil {
		return err
	}
	logger.Info("Recorded render", "id", rec.ID, "kind", rec.Kind, "path", rec.Path)
	return nil
}

func runPlot(ctx context.Context, args []string) error {
	var (
		c     common
		sel   selection
		style styleFlags
		pub   publishFlags
		step  int
		out   string
	)
	fs := newFlagSet("plot")
	c.register(fs)
	sel.register(fs)
	style.register(fs)
	pub.register(fs)
	fs.IntVar(&step, "t", 0, "index of the timestep to plot within the selection")
	fs.StringVar(&out, "o", "", "output image, png, svg, pdf or jpg by extension. Named after the region by default")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger := c.logger()
	opts := style.options()

	d, err := sel.load(ctx, logger, nil)
	if err != nil {
		return err
	}
	snap, err := d.Snapshot(step, []string{opts.UVar, opts.VVar}, true)
	if err != nil {
		return err
	}
	fig, err := render.WindPlot(snap, opts)
	if err != nil {
		return err
	}
	rg, _ := sel.regionOrGlobal()
	if out == "" {
		out = artifactName("wind", rg, []time.Time{snap.Time}, ".png")
	}
	if err := fig.Save(out); err != nil {
		return err
	}
	logger.Info("Plot saved", "path", out, "time", snap.Time)
	return pub.finish(ctx, logger, catalog.Render{Kind: "plot", Source: sel.file, Region: rg.String(), Path: out})
}

func runAnimate(ctx context.Context, args []string) error {
	var (
		c     common
		sel   selection
		style styleFlags
		pub   publishFlags
		aopts render.AnimationOptions
		pcfg  = particles.DefaultConfig()
		out   string
	)
	fs := newFlagSet("animate")
	c.register(fs)
	sel.register(fs)
	style.register(fs)
	pub.register(fs)
	fs.StringVar(&aopts.Mode, "mode", render.ModeParticles, "animation mode, "+render.ModeQuiver+" or "+render.ModeParticles)
	fs.IntVar(&aopts.FPS, "fps", 4, "frames per second")
	fs.IntVar(&aopts.FramesPerStep, "frames-per-step", 8, "frames between two timesteps in particles mode")
	fs.IntVar(&aopts.TrailLength, "trail", 6, "length of particle trails in frames")
	fs.IntVar(&pcfg.Count, "particles", pcfg.Count, "number of particles")
	fs.IntVar(&pcfg.MaxAge, "max-age", pcfg.MaxAge, "frames after which a particle respawns")
	fs.DurationVar(&pcfg.Step, "advect", pcfg.Step, "simulated time a particle moves per frame")
	fs.Uint64Var(&pcfg.Seed, "seed", pcfg.Seed, "seed of the particle simulation")
	fs.IntVar(&aopts.Concurrency, "concurrency", runtime.NumCPU(), "number of frames rendered concurrently")
	fs.StringVar(&out, "o", "", "output GIF. Named after the region by default")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger := c.logger()
	aopts.Options = style.options()
	aopts.Particles = pcfg

	d, err := sel.load(ctx, logger, nil)
	if err != nil {
		return err
	}
	rg, _ := sel.regionOrGlobal()
	if out == "" {
		out = artifactName("wind", rg, d.Times, ".gif")
	}

	start := time.Now()
	lastPercent := -1
	aopts.Progress = func(done, total int) {
		percent := 100 * done / total
		if percent/10 == lastPercent/10 && done != total {
			return
		}
		lastPercent = percent
		logger.Info("progress", "rendered", fmt.Sprintf("%d%%", percent), "frames", done, "in", time.Since(start).Round(time.Second))
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	err = render.Animate(ctx, d, f, aopts)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out)
		return err
	}
	logger.Info("Animation saved", "path", out, "mode", aopts.Mode, "in", time.Since(start).Round(time.Millisecond))
	return pub.finish(ctx, logger, catalog.Render{Kind: "animation", Source: sel.file, Region: rg.String(), Path: out})
}

// regionOrGlobal returns the region the selection crops to.
func (s *selection) regionOrGlobal() (region.Region, error) {
	rg, err := region.Parse(s.region)
	if err != nil {
		return region.Global(), err
	}
	if s.padKm > 0 {
		rg = rg.Pad(s.padKm)
	}
	return rg, nil
}

func runSubset(ctx context.Context, args []string) error {
	var (
		c      common
		sel    selection
		derive bool
		out    string
	)
	fs := newFlagSet("subset")
	c.register(fs)
	sel.register(fs)
	fs.BoolVar(&derive, "derive", false, "add wind_speed and wind_direction computed from u10 and v10")
	fs.StringVar(&out, "o", "", "output NetCDF file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if out == "" {
		return errors.New("-o is required")
	}
	if abs, err := filepath.Abs(out); err == nil {
		if src, err := filepath.Abs(sel.file); err == nil && abs == src {
			return errors.New("-o must differ from -file")
		}
	}
	logger := c.logger()

	var fn func(*era5.Processor) error
	if derive {
		fn = func(p *era5.Processor) error {
			if err := p.CalculateWindSpeed("", "", ""); err != nil {
				return err
			}
			return p.CalculateWindDirection("", "", "")
		}
	}
	d, err := sel.load(ctx, logger, fn)
	if err != nil {
		return err
	}
	if err := era5.WriteNetCDF(out, d); err != nil {
		os.Remove(out)
		return err
	}
	logger.Info("Subset saved", "path", out, "vars", strings.Join(d.Names(), ","))
	return nil
}

func runRenders(ctx context.Context, args []string) error {
	var (
		c     common
		dsn   string
		limit int
	)
	fs := newFlagSet("renders")
	c.register(fs)
	fs.StringVar(&dsn, "catalog", defaultCatalog, "catalog database")
	fs.IntVar(&limit, "limit", 20, "maximum number of renders to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cat, err := catalog.Open(dsn)
	if err != nil {
		return err
	}
	defer cat.Close()
	renders, err := cat.ListRenders(ctx, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tKIND\tREGION\tPATH\tLOCATION\tID")
	for _, r := range renders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.CreatedAt, r.Kind, r.Region, r.Path, r.Location, r.ID)
	}
	return tw.Flush()
}
