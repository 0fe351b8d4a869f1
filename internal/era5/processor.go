package era5

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rtm0/era5wind/internal/region"
)

const defaultWindUnits = "m s**-1"

// Options control how a Source is turned into a processed Dataset.
type Options struct {
	// Variables to load. Empty selects every variable of the source.
	Variables []VarSpec
	// Start and End bound the time axis, both inclusive. A zero value leaves
	// that side open.
	Start time.Time
	End   time.Time
	// Region crops the grid, bounds inclusive.
	Region region.Region
	// ConvertLongitude maps longitudes from [0, 360) to [-180, 180) and sorts
	// them ascending before cropping.
	ConvertLongitude bool
	// IncludeAttributes copies variable attributes from the source.
	IncludeAttributes bool
}

// DefaultOptions selects every variable over the whole globe with longitude
// conversion and attributes enabled.
func DefaultOptions() Options {
	return Options{
		Region:            region.Global(),
		ConvertLongitude:  true,
		IncludeAttributes: true,
	}
}

// Processor filters, crops and derives variables from a Source and keeps the
// result in memory.
type Processor struct {
	src    Source
	opts   Options
	loaded *Dataset
}

// NewProcessor creates a processor for src.
func NewProcessor(src Source, opts Options) *Processor {
	return &Processor{src: src, opts: opts}
}

// Process filters by date, selects variables, converts and sorts longitudes,
// crops by region and loads the values.
func (p *Processor) Process(ctx context.Context) error {
	available := make(map[string]bool)
	for _, name := range p.src.Variables() {
		available[name] = true
	}
	specs := p.opts.Variables
	if len(specs) == 0 {
		for _, name := range p.src.Variables() {
			specs = append(specs, VarSpec{Source: name, Name: name})
		}
	}
	if len(specs) == 0 {
		return errors.New("source has no gridded variables")
	}
	for _, spec := range specs {
		if !available[spec.Source] {
			return unknownVariable(spec.Source)
		}
	}

	ti := p.timeIndices()
	if len(ti) == 0 {
		return fmt.Errorf("no timesteps between %s and %s", fmtBound(p.opts.Start), fmtBound(p.opts.End))
	}
	rg := p.opts.Region
	if rg == (region.Region{}) {
		rg = region.Global()
	}
	lai := latIndices(p.src.Latitudes(), rg)
	loi, lons := p.lonIndices(rg)
	if len(lai) == 0 || len(loi) == 0 {
		return fmt.Errorf("region %s selects no grid points", rg)
	}

	srcTimes := p.src.Times()
	times := make([]time.Time, len(ti))
	for k, t := range ti {
		times[k] = srcTimes[t]
	}
	srcLat := p.src.Latitudes()
	lat := make([]float64, len(lai))
	for k, i := range lai {
		lat[k] = srcLat[i]
	}
	d := NewDataset(times, lat, lons)

	for _, spec := range specs {
		attrs := map[string]string{}
		if p.opts.IncludeAttributes {
			a, err := p.src.Attrs(spec.Source)
			if err != nil {
				return err
			}
			for k, v := range a {
				attrs[k] = v
			}
		}
		v := &Variable{Name: spec.Name, Attrs: attrs, Values: make([][][]float32, len(ti))}
		for k, t := range ti {
			if err := ctx.Err(); err != nil {
				return err
			}
			grid, err := p.src.ReadStep(spec.Source, t)
			if err != nil {
				return err
			}
			v.Values[k] = crop(grid, lai, loi)
		}
		d.Add(v)
	}
	p.loaded = d
	return nil
}

func fmtBound(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.UTC().Format(time.RFC3339)
}

func (p *Processor) timeIndices() []int {
	var idx []int
	for i, t := range p.src.Times() {
		if !p.opts.Start.IsZero() && t.Before(p.opts.Start) {
			continue
		}
		if !p.opts.End.IsZero() && t.After(p.opts.End) {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}

func latIndices(lat []float64, rg region.Region) []int {
	var idx []int
	for i, la := range lat {
		if rg.ContainsLat(la) {
			idx = append(idx, i)
		}
	}
	return idx
}

// lonIndices returns the source column of every selected longitude together
// with the (possibly converted) longitude values, in output order.
func (p *Processor) lonIndices(rg region.Region) ([]int, []float64) {
	src := p.src.Longitudes()
	conv := make([]float64, len(src))
	order := make([]int, len(src))
	for i, lo := range src {
		conv[i] = lo
		if p.opts.ConvertLongitude {
			conv[i] = region.NormalizeLongitude(lo)
		}
		order[i] = i
	}
	if p.opts.ConvertLongitude {
		sort.SliceStable(order, func(a, b int) bool { return conv[order[a]] < conv[order[b]] })
	}
	var idx []int
	var lons []float64
	for _, i := range order {
		if rg.ContainsLon(conv[i]) {
			idx = append(idx, i)
			lons = append(lons, conv[i])
		}
	}
	return idx, lons
}

func crop(grid [][]float32, lai, loi []int) [][]float32 {
	out := make([][]float32, len(lai))
	for k, i := range lai {
		row := make([]float32, len(loi))
		for m, j := range loi {
			row[m] = grid[i][j]
		}
		out[k] = row
	}
	return out
}

// Dataset returns the processed dataset.
func (p *Processor) Dataset() (*Dataset, error) {
	if p.loaded == nil {
		return nil, ErrNotProcessed
	}
	return p.loaded, nil
}

// ExtractTimestep extracts the given variables at one timestep of the
// processed dataset. With latLon the coordinates are included in the
// snapshot.
func (p *Processor) ExtractTimestep(step int, vars []string, latLon bool) (*Snapshot, error) {
	if len(vars) == 0 {
		return nil, errors.New("no variables selected for extraction")
	}
	if p.loaded == nil {
		return nil, ErrNotProcessed
	}
	return p.loaded.Snapshot(step, vars, latLon)
}

// CalculateWindSpeed adds the wind speed computed from the u and v components
// to the processed dataset. Empty names default to u10, v10 and wind_speed.
func (p *Processor) CalculateWindSpeed(u, v, name string) error {
	return p.derive(u, v, name, "wind_speed", Speed, func(uVar *Variable, u, v string) map[string]string {
		units := uVar.Units()
		if units == "" {
			units = defaultWindUnits
		}
		return map[string]string{
			"long_name": fmt.Sprintf("Wind Speed calculated from %s and %s", u, v),
			"units":     units,
		}
	})
}

// CalculateWindDirection adds the direction the wind blows from, in degrees
// clockwise from north. Empty names default to u10, v10 and wind_direction.
func (p *Processor) CalculateWindDirection(u, v, name string) error {
	return p.derive(u, v, name, "wind_direction", Direction, func(_ *Variable, u, v string) map[string]string {
		return map[string]string{
			"long_name": fmt.Sprintf("Wind Direction calculated from %s and %s", u, v),
			"units":     "degrees",
		}
	})
}

func (p *Processor) derive(u, v, name, defName string, f func(u, v float32) float32, attrs func(*Variable, string, string) map[string]string) error {
	if u == "" {
		u = "u10"
	}
	if v == "" {
		v = "v10"
	}
	if name == "" {
		name = defName
	}
	if p.loaded == nil {
		return ErrNotProcessed
	}
	d := p.loaded
	uVar, uOK := d.Vars[u]
	vVar, vOK := d.Vars[v]
	if !uOK || !vOK {
		return fmt.Errorf("%w: %q and/or %q", ErrUnknownVariable, u, v)
	}
	out := &Variable{Name: name, Attrs: map[string]string{}, Values: make([][][]float32, len(uVar.Values))}
	for t := range uVar.Values {
		out.Values[t] = make([][]float32, len(uVar.Values[t]))
		for i := range uVar.Values[t] {
			row := make([]float32, len(uVar.Values[t][i]))
			for j := range row {
				row[j] = f(uVar.Values[t][i][j], vVar.Values[t][i][j])
			}
			out.Values[t][i] = row
		}
	}
	if p.opts.IncludeAttributes {
		out.Attrs = attrs(uVar, u, v)
	}
	d.Add(out)
	return nil
}

// Subsample returns a new dataset keeping every step-th latitude and
// longitude of the processed dataset.
func (p *Processor) Subsample(step int) (*Dataset, error) {
	if p.loaded == nil {
		return nil, ErrNotProcessed
	}
	return p.loaded.Subsample(step)
}

// Subsample returns a copy of the dataset keeping every step-th latitude and
// longitude.
func (d *Dataset) Subsample(step int) (*Dataset, error) {
	if step < 1 {
		return nil, fmt.Errorf("subsample step must be at least 1, got %d", step)
	}
	lai := strided(len(d.Lat), step)
	loi := strided(len(d.Lon), step)
	lat := make([]float64, len(lai))
	for k, i := range lai {
		lat[k] = d.Lat[i]
	}
	lon := make([]float64, len(loi))
	for k, j := range loi {
		lon[k] = d.Lon[j]
	}
	out := NewDataset(append([]time.Time(nil), d.Times...), lat, lon)
	for _, name := range d.names {
		v := d.Vars[name]
		attrs := make(map[string]string, len(v.Attrs))
		for k, val := range v.Attrs {
			attrs[k] = val
		}
		sv := &Variable{Name: name, Attrs: attrs, Values: make([][][]float32, len(v.Values))}
		for t, grid := range v.Values {
			sv.Values[t] = crop(grid, lai, loi)
		}
		out.Add(sv)
	}
	return out, nil
}

func strided(n, step int) []int {
	idx := make([]int, 0, (n+step-1)/step)
	for i := 0; i < n; i += step {
		idx = append(idx, i)
	}
	return idx
}

// Range returns the minimum and maximum of a variable over all timesteps,
// ignoring NaN. ok is false when every value is NaN.
func (v *Variable) Range() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, grid := range v.Values {
		for _, row := range grid {
			for _, x := range row {
				f := float64(x)
				if math.IsNaN(f) {
					continue
				}
				lo = math.Min(lo, f)
				hi = math.Max(hi, f)
				ok = true
			}
		}
	}
	return lo, hi, ok
}
