package era5

import (
	"fmt"
	"math"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

var (
	timeNames = []string{"valid_time", "time"}
	latNames  = []string{"latitude", "lat"}
	lonNames  = []string{"longitude", "lon"}
)

// Scanner reads variables from an ERA5 NetCDF file one timestamp at a time.
type Scanner struct {
	nc      api.Group
	la      []float64
	lo      []float64
	ts      []time.Time
	dims    [3]string
	vars    map[string]api.VarGetter
	names   []string
	packing map[string]packing
}

// packing describes how raw stored values map to physical values.
type packing struct {
	scale, offset float64
	fill          []float64
}

func (p packing) unpack(raw float64) float32 {
	for _, f := range p.fill {
		if raw == f {
			return float32(math.NaN())
		}
	}
	return float32(raw*p.scale + p.offset)
}

// Open creates a new ERA5 file scanner.
func Open(filePath string) (*Scanner, error) {
	nc, err := netcdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	s, err := newScanner(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return s, nil
}

func newScanner(nc api.Group) (*Scanner, error) {
	s := &Scanner{
		nc:      nc,
		vars:    make(map[string]api.VarGetter),
		packing: make(map[string]packing),
	}
	var err error
	var timeDim api.VarGetter
	timeDim, s.dims[0], err = firstVar(nc, timeNames)
	if err != nil {
		return nil, err
	}
	raw, err := coordValues(timeDim)
	if err != nil {
		return nil, err
	}
	units, _ := stringAttr(timeDim.Attributes(), "units")
	s.ts, err = decodeTimes(raw, units)
	if err != nil {
		return nil, err
	}
	var la, lo api.VarGetter
	la, s.dims[1], err = firstVar(nc, latNames)
	if err != nil {
		return nil, err
	}
	if s.la, err = coordValues(la); err != nil {
		return nil, err
	}
	lo, s.dims[2], err = firstVar(nc, lonNames)
	if err != nil {
		return nil, err
	}
	if s.lo, err = coordValues(lo); err != nil {
		return nil, err
	}

	for _, name := range nc.ListVariables() {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			return nil, err
		}
		dims := vg.Dimensions()
		if len(dims) != 3 || dims[0] != s.dims[0] || dims[1] != s.dims[1] || dims[2] != s.dims[2] {
			continue
		}
		s.vars[name] = vg
		s.names = append(s.names, name)
		s.packing[name] = packingOf(vg.Attributes())
	}
	return s, nil
}

func firstVar(nc api.Group, names []string) (api.VarGetter, string, error) {
	for _, name := range names {
		vg, err := nc.GetVarGetter(name)
		if err == nil {
			return vg, name, nil
		}
	}
	return nil, "", fmt.Errorf("none of the coordinates %q found", names)
}

func coordValues(vg api.VarGetter) ([]float64, error) {
	v, err := vg.Values()
	if err != nil {
		return nil, err
	}
	switch vals := v.(type) {
	case []float32:
		return widen(vals), nil
	case []float64:
		return vals, nil
	case []int32:
		return widen(vals), nil
	case []int64:
		return widen(vals), nil
	case []int16:
		return widen(vals), nil
	default:
		return nil, fmt.Errorf("unsupported coordinate type %T", v)
	}
}

func widen[T int16 | int32 | int64 | float32](vals []T) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = float64(v)
	}
	return out
}

func packingOf(attrs api.AttributeMap) packing {
	p := packing{scale: 1}
	if f, ok := floatAttr(attrs, "scale_factor"); ok {
		p.scale = f
	}
	if f, ok := floatAttr(attrs, "add_offset"); ok {
		p.offset = f
	}
	for _, key := range []string{"_FillValue", "missing_value"} {
		if f, ok := floatAttr(attrs, key); ok {
			p.fill = append(p.fill, f)
		}
	}
	return p
}

func floatAttr(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int16:
		return float64(f), true
	case int32:
		return float64(f), true
	case int8:
		return float64(f), true
	case []float64:
		if len(f) > 0 {
			return f[0], true
		}
	case []float32:
		if len(f) > 0 {
			return float64(f[0]), true
		}
	case []int16:
		if len(f) > 0 {
			return float64(f[0]), true
		}
	case []int32:
		if len(f) > 0 {
			return float64(f[0]), true
		}
	}
	return 0, false
}

func stringAttr(attrs api.AttributeMap, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Close closes the scanner.
func (s *Scanner) Close() {
	s.nc.Close()
}

// Summary returns the summary information about the dataset suitable for
// logging.
func (s *Scanner) Summary() []any {
	summary := []any{
		"dims", s.dims[:],
		"metrics", s.names,
		"tsCnt", len(s.ts),
		"laCnt", len(s.la),
		"loCnt", len(s.lo),
		"totalRecCnt", s.TotalRecCount(),
	}
	if len(s.ts) > 0 {
		summary = append(summary, "from", s.ts[0], "to", s.ts[len(s.ts)-1])
	}
	return summary
}

// TotalRecCount returns the total number of values within the dataset.
func (s *Scanner) TotalRecCount() int {
	return len(s.ts) * len(s.la) * len(s.lo) * len(s.names)
}

// Times returns the decoded time axis.
func (s *Scanner) Times() []time.Time { return s.ts }

// Latitudes returns the latitude axis in file order.
func (s *Scanner) Latitudes() []float64 { return s.la }

// Longitudes returns the longitude axis in file order.
func (s *Scanner) Longitudes() []float64 { return s.lo }

// Variables returns the names of the gridded variables in file order.
func (s *Scanner) Variables() []string { return append([]string(nil), s.names...) }

// Attrs returns the attributes of a variable rendered as strings.
func (s *Scanner) Attrs(name string) (map[string]string, error) {
	vg, ok := s.vars[name]
	if !ok {
		return nil, unknownVariable(name)
	}
	out := make(map[string]string)
	attrs := vg.Attributes()
	if attrs == nil {
		return out, nil
	}
	for _, k := range attrs.Keys() {
		v, _ := attrs.Get(k)
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}

// ReadStep reads the unpacked grid of a variable at timestep t.
func (s *Scanner) ReadStep(name string, t int) ([][]float32, error) {
	vg, ok := s.vars[name]
	if !ok {
		return nil, unknownVariable(name)
	}
	if t < 0 || t >= len(s.ts) {
		return nil, timestepError(t, len(s.ts))
	}
	begin := int64(t)
	limit := begin + 1
	v, err := vg.GetSlice(begin, limit)
	if err != nil {
		return nil, fmt.Errorf("reading %s at timestep %d: %w", name, t, err)
	}
	p := s.packing[name]
	switch vals := v.(type) {
	case [][][]int16:
		return unpackGrid(vals[0], p), nil
	case [][][]int8:
		return unpackGrid(vals[0], p), nil
	case [][][]int32:
		return unpackGrid(vals[0], p), nil
	case [][][]float32:
		return unpackGrid(vals[0], p), nil
	case [][][]float64:
		return unpackGrid(vals[0], p), nil
	default:
		return nil, fmt.Errorf("variable %s has unsupported type %T", name, v)
	}
}

func unpackGrid[T int8 | int16 | int32 | float32 | float64](g [][]T, p packing) [][]float32 {
	out := make([][]float32, len(g))
	for i, row := range g {
		out[i] = make([]float32, len(row))
		for j, raw := range row {
			out[i][j] = p.unpack(float64(raw))
		}
	}
	return out
}
