package era5

import (
	"fmt"
	"sort"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
)

// WriteNetCDF saves the dataset as a classic NetCDF file that Open can read
// back. Values are written unpacked as float32 with NaN for missing values.
func WriteNetCDF(path string, d *Dataset) (err error) {
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cw.Close(); err == nil {
			err = cerr
		}
	}()

	coords := []struct {
		name   string
		values any
		attrs  map[string]any
	}{
		{"time", hoursSince1900(d.Times), map[string]any{"units": defaultTimeUnits, "calendar": "gregorian", "long_name": "time"}},
		{"latitude", d.Lat, map[string]any{"units": "degrees_north", "long_name": "latitude"}},
		{"longitude", d.Lon, map[string]any{"units": "degrees_east", "long_name": "longitude"}},
	}
	for _, c := range coords {
		attrs, err := orderedAttrs(c.attrs)
		if err != nil {
			return err
		}
		if err := cw.AddVar(c.name, api.Variable{
			Values:     c.values,
			Dimensions: []string{c.name},
			Attributes: attrs,
		}); err != nil {
			return fmt.Errorf("writing %s: %w", c.name, err)
		}
	}

	for _, name := range d.names {
		v := d.Vars[name]
		a := make(map[string]any)
		for k, val := range v.Attrs {
			// values are stored unpacked and attribute types are lost on load
			if strings.HasPrefix(k, "_") || k == "scale_factor" || k == "add_offset" || k == "missing_value" {
				continue
			}
			a[k] = val
		}
		attrs, err := orderedAttrs(a)
		if err != nil {
			return err
		}
		if err := cw.AddVar(name, api.Variable{
			Values:     v.Values,
			Dimensions: []string{"time", "latitude", "longitude"},
			Attributes: attrs,
		}); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

func orderedAttrs(m map[string]any) (*util.OrderedMap, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return util.NewOrderedMap(keys, m)
}
