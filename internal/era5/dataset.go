package era5

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotProcessed is returned when processed data is requested before
	// Processor.Process has run.
	ErrNotProcessed = errors.New("no processed data available, run Process first")
	// ErrUnknownVariable is returned when a variable is not in the dataset.
	ErrUnknownVariable = errors.New("variable not found in dataset")
	// ErrTimestepRange is returned when a timestep index is out of bounds.
	ErrTimestepRange = errors.New("timestep out of bounds")
)

func unknownVariable(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownVariable, name)
}

func timestepError(t, n int) error {
	return fmt.Errorf("%w: timestep %d, have %d", ErrTimestepRange, t, n)
}

// Source is a gridded dataset that can be read one timestep at a time.
type Source interface {
	Times() []time.Time
	Latitudes() []float64
	Longitudes() []float64
	// Variables lists the names of the (time, latitude, longitude) variables.
	Variables() []string
	Attrs(name string) (map[string]string, error)
	// ReadStep returns the [latitude][longitude] grid of variable name at
	// timestep t. Missing values are NaN.
	ReadStep(name string, t int) ([][]float32, error)
}

// Variable is a gridded variable indexed [time][latitude][longitude].
type Variable struct {
	Name   string
	Attrs  map[string]string
	Values [][][]float32
}

// Units returns the units attribute, if any.
func (v *Variable) Units() string {
	return v.Attrs["units"]
}

// Dataset is a set of variables sharing the same time, latitude and longitude
// axes, fully loaded in memory.
type Dataset struct {
	Times []time.Time
	Lat   []float64
	Lon   []float64
	Vars  map[string]*Variable

	names []string
}

// NewDataset creates an empty dataset over the given axes.
func NewDataset(times []time.Time, lat, lon []float64) *Dataset {
	return &Dataset{
		Times: times,
		Lat:   lat,
		Lon:   lon,
		Vars:  make(map[string]*Variable),
	}
}

// Add adds or replaces a variable. New variables are appended to Names().
func (d *Dataset) Add(v *Variable) {
	if _, ok := d.Vars[v.Name]; !ok {
		d.names = append(d.names, v.Name)
	}
	d.Vars[v.Name] = v
}

// Names returns the variable names in insertion order.
func (d *Dataset) Names() []string {
	return append([]string(nil), d.names...)
}

// Summary returns the summary information about the dataset suitable for
// logging.
func (d *Dataset) Summary() []any {
	s := []any{
		"vars", d.Names(),
		"tsCnt", len(d.Times),
		"laCnt", len(d.Lat),
		"loCnt", len(d.Lon),
	}
	if len(d.Times) > 0 {
		s = append(s, "from", d.Times[0], "to", d.Times[len(d.Times)-1])
	}
	return s
}

// AsSource exposes the dataset as a Source so that it can be processed again.
func (d *Dataset) AsSource() Source {
	return datasetSource{d}
}

type datasetSource struct {
	d *Dataset
}

func (s datasetSource) Times() []time.Time    { return s.d.Times }
func (s datasetSource) Latitudes() []float64  { return s.d.Lat }
func (s datasetSource) Longitudes() []float64 { return s.d.Lon }
func (s datasetSource) Variables() []string   { return s.d.Names() }

func (s datasetSource) Attrs(name string) (map[string]string, error) {
	v, ok := s.d.Vars[name]
	if !ok {
		return nil, unknownVariable(name)
	}
	return v.Attrs, nil
}

func (s datasetSource) ReadStep(name string, t int) ([][]float32, error) {
	v, ok := s.d.Vars[name]
	if !ok {
		return nil, unknownVariable(name)
	}
	if t < 0 || t >= len(v.Values) {
		return nil, timestepError(t, len(v.Values))
	}
	return v.Values[t], nil
}

// Field is a single variable at a single timestep, indexed [latitude][longitude].
type Field struct {
	Name   string
	Units  string
	Values [][]float32
}

// Snapshot holds several variables at one timestep.
type Snapshot struct {
	Time   time.Time
	Lat    []float64
	Lon    []float64
	Fields map[string]Field
}

// Snapshot extracts the given variables at timestep t. With latLon the
// coordinates are included.
func (d *Dataset) Snapshot(t int, vars []string, latLon bool) (*Snapshot, error) {
	if t < 0 || t >= len(d.Times) {
		return nil, timestepError(t, len(d.Times))
	}
	snap := &Snapshot{Time: d.Times[t], Fields: make(map[string]Field, len(vars))}
	for _, name := range vars {
		v, ok := d.Vars[name]
		if !ok {
			return nil, unknownVariable(name)
		}
		snap.Fields[name] = Field{Name: name, Units: v.Units(), Values: v.Values[t]}
	}
	if latLon {
		snap.Lat = d.Lat
		snap.Lon = d.Lon
	}
	return snap, nil
}

// VarSpec selects a source variable and the name it takes in the processed
// dataset.
type VarSpec struct {
	Source string
	Name   string
}

// ParseVarSpecs parses a comma separated list of variables. Each entry is
// either "name" or "source=name" to rename the variable.
func ParseVarSpecs(s string) ([]VarSpec, error) {
	var specs []VarSpec
	seen := make(map[string]bool)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		src, name, found := strings.Cut(item, "=")
		src = strings.TrimSpace(src)
		name = strings.TrimSpace(name)
		if !found {
			name = src
		}
		if src == "" || name == "" {
			return nil, fmt.Errorf("malformed variable %q", item)
		}
		if seen[name] {
			return nil, fmt.Errorf("variable %q selected twice", name)
		}
		seen[name] = true
		specs = append(specs, VarSpec{Source: src, Name: name})
	}
	return specs, nil
}
