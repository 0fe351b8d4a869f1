package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/rtm0/era5wind/internal/era5"
	"github.com/rtm0/era5wind/internal/region"
)

// selection are the flags that pick a subset of an ERA5 file.
type selection struct {
	file       string
	vars       string
	from, to   string
	region     string
	padKm      float64
	convertLon bool
	attrs      bool
	step       int
}

func (s *selection) register(fs *flag.FlagSet) {
	fs.StringVar(&s.file, "file", "", "path to an ERA5 file in NetCDF format")
	fs.StringVar(&s.vars, "vars", "", "comma separated variables to load, optionally renamed as src=name. Empty loads all")
	fs.StringVar(&s.from, "from", "", "first time to load, YYYY-MM-DD[THH:MM] in UTC. Empty means the start of the file")
	fs.StringVar(&s.to, "to", "", "last time to load, inclusive. A date without a time includes the whole day")
	fs.StringVar(&s.region, "region", "", "latMin,latMax,lonMin,lonMax to crop to. Empty keeps the whole grid")
	fs.Float64Var(&s.padKm, "pad", 0, "widen -region by this many kilometres on every side")
	fs.BoolVar(&s.convertLon, "convert-lon", true, "convert longitudes from [0,360) to [-180,180)")
	fs.BoolVar(&s.attrs, "attrs", true, "keep variable attributes")
	fs.IntVar(&s.step, "step", 1, "keep every step-th latitude and longitude")
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02T15", "2006-01-02"}

// parseTime parses a time flag. A date alone is extended to the end of the
// day when end is set.
func parseTime(s string, end bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if end && layout == "2006-01-02" {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

func (s *selection) options() (era5.Options, error) {
	opts := era5.Options{ConvertLongitude: s.convertLon, IncludeAttributes: s.attrs}
	var err error
	if opts.Variables, err = era5.ParseVarSpecs(s.vars); err != nil {
		return opts, err
	}
	if opts.Start, err = parseTime(s.from, false); err != nil {
		return opts, err
	}
	if opts.End, err = parseTime(s.to, true); err != nil {
		return opts, err
	}
	if !opts.Start.IsZero() && !opts.End.IsZero() && opts.End.Before(opts.Start) {
		return opts, fmt.Errorf("-to %s is before -from %s", s.to, s.from)
	}
	if opts.Region, err = region.Parse(s.region); err != nil {
		return opts, err
	}
	if s.padKm > 0 {
		opts.Region = opts.Region.Pad(s.padKm)
	}
	if s.step < 1 {
		return opts, fmt.Errorf("-step must be at least 1, got %d", s.step)
	}
	return opts, nil
}

// load opens and processes the selected file. derive is run on the
// processor before subsampling.
func (s *selection) load(ctx context.Context, logger *slog.Logger, derive func(*era5.Processor) error) (*era5.Dataset, error) {
	if s.file == "" {
		return nil, errors.New("-file is required")
	}
	opts, err := s.options()
	if err != nil {
		return nil, err
	}

	sc, err := era5.Open(s.file)
	if err != nil {
		return nil, fmt.Errorf("could not create an ERA5 scanner: %w", err)
	}
	defer sc.Close()
	logger.Info("ERA5 summary", sc.Summary()...)

	start := time.Now()
	p := era5.NewProcessor(sc, opts)
	if err := p.Process(ctx); err != nil {
		return nil, err
	}
	if derive != nil {
		if err := derive(p); err != nil {
			return nil, err
		}
	}
	d, err := p.Subsample(s.step)
	if err != nil {
		return nil, err
	}
	logger.Info("Processed", append(d.Summary(), "region", opts.Region, "in", time.Since(start).Round(time.Millisecond))...)
	return d, nil
}
