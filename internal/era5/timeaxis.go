package era5

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TZ=UTC date --date="1900-01-01 00:00:00" +%s
const unixSecs1900 = -2208988800

// defaultTimeUnits is what ERA5 files in the legacy CDS format carry.
const defaultTimeUnits = "hours since 1900-01-01 00:00:00.0"

var epochLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimeUnits parses CF time units such as "hours since 1900-01-01".
func parseTimeUnits(units string) (time.Duration, time.Time, error) {
	unit, since, found := strings.Cut(strings.TrimSpace(units), " since ")
	if !found {
		return 0, time.Time{}, fmt.Errorf("unsupported time units %q", units)
	}
	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "seconds", "second", "secs", "s":
		step = time.Second
	case "minutes", "minute", "mins":
		step = time.Minute
	case "hours", "hour", "hrs", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("unsupported time unit %q in %q", unit, units)
	}
	since = strings.TrimSuffix(strings.TrimSpace(since), " UTC")
	for _, layout := range epochLayouts {
		if epoch, err := time.ParseInLocation(layout, since, time.UTC); err == nil {
			return step, epoch, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("unsupported epoch %q in %q", since, units)
}

// decodeTimes converts raw offsets into UTC timestamps.
func decodeTimes(raw []float64, units string) ([]time.Time, error) {
	if units == "" {
		units = defaultTimeUnits
	}
	step, epoch, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	ts := make([]time.Time, len(raw))
	for i, r := range raw {
		if math.IsNaN(r) {
			return nil, fmt.Errorf("time value %d is missing", i)
		}
		ts[i] = epoch.Add(time.Duration(math.Round(r * float64(step))))
	}
	return ts, nil
}

// hoursSince1900 is the inverse of decodeTimes for defaultTimeUnits.
func hoursSince1900(ts []time.Time) []float64 {
	hours := make([]float64, len(ts))
	for i, t := range ts {
		hours[i] = float64(t.Unix()-unixSecs1900) / 3600
	}
	return hours
}
