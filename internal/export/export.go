// Package export encodes wind records as text for time series databases and
// spreadsheets.
package export

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/rtm0/era5wind/internal/era5"
)

// Formats.
const (
	CSV    = "csv"
	Influx = "influx"
)

const metricPrefixRE = "^[a-zA-Z0-9]+$"

var metricPrefixPattern = regexp.MustCompile(metricPrefixRE)

// RecToTextFunc appends the text form of a record to the string builder.
type RecToTextFunc func(sb *strings.Builder, r *era5.Record, metricPrefix string)

var recToTextFuncs = map[string]RecToTextFunc{
	CSV:    RecToCSV,
	Influx: RecToInfluxDB,
}

var headers = map[string]string{
	CSV: "timestamp,la,lo,u,v,ws,wd",
}

// Formats returns the supported format names.
func Formats() []string {
	names := make([]string, 0, len(recToTextFuncs))
	for name := range recToTextFuncs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the encoder of a format.
func Lookup(format string) (RecToTextFunc, error) {
	f, ok := recToTextFuncs[format]
	if !ok {
		return nil, fmt.Errorf("unsupported export format %q, want one of %q", format, Formats())
	}
	return f, nil
}

// ValidateMetricPrefix checks that a metric prefix is a plain alphanumeric
// word.
func ValidateMetricPrefix(metricPrefix string) error {
	if !metricPrefixPattern.MatchString(metricPrefix) {
		return fmt.Errorf("metric prefix %q does not match %q regular expression", metricPrefix, metricPrefixRE)
	}
	return nil
}

var influxDBFmt = "%s,la=%.2f,lo=%.2f u=%.2f,v=%.2f,ws=%.2f,wd=%.1f %d"

// RecToInfluxDB converts a record into InfluxDB line protocol and appends it
// to the string builder.
func RecToInfluxDB(sb *strings.Builder, r *era5.Record, metricPrefix string) {
	sb.WriteString(fmt.Sprintf(influxDBFmt, []any{
		metricPrefix,
		r.Latitude,
		r.Longitude,
		r.ZonalWind,
		r.MeridionalWind,
		r.Speed,
		r.Direction,
		r.Timestamp,
	}...))
}

var csvFmt = "%d,%.2f,%.2f,%.2f,%.2f,%.2f,%.1f"

// RecToCSV converts a record into a CSV record and appends it to the string
// builder.
func RecToCSV(sb *strings.Builder, r *era5.Record, _ string) {
	sb.WriteString(fmt.Sprintf(csvFmt, []any{
		r.Timestamp,
		r.Latitude,
		r.Longitude,
		r.ZonalWind,
		r.MeridionalWind,
		r.Speed,
		r.Direction,
	}...))
}

// RecsToText converts records to text, one line per record. Records with a
// missing wind component are skipped.
func RecsToText(recs []era5.Record, metricPrefix string, recToText RecToTextFunc) string {
	s, _ := recsToText(recs, metricPrefix, recToText)
	return s
}

// recsToText is RecsToText that also reports the number of records encoded.
func recsToText(recs []era5.Record, metricPrefix string, recToText RecToTextFunc) (string, int) {
	var sb strings.Builder
	n := 0
	for _, r := range recs {
		if isMissing(&r) {
			continue
		}
		recToText(&sb, &r, metricPrefix)
		sb.WriteString("\n")
		n++
	}
	return sb.String(), n
}

func isMissing(r *era5.Record) bool {
	return math.IsNaN(float64(r.ZonalWind)) || math.IsNaN(float64(r.MeridionalWind))
}

// Writer writes records in one format to an io.Writer.
type Writer struct {
	w            *bufio.Writer
	format       string
	metricPrefix string
	recToText    RecToTextFunc
	wroteHeader  bool
}

// NewWriter creates a writer of the given format. metricPrefix names the
// measurement in formats that carry one.
func NewWriter(w io.Writer, format, metricPrefix string) (*Writer, error) {
	recToText, err := Lookup(format)
	if err != nil {
		return nil, err
	}
	if err := ValidateMetricPrefix(metricPrefix); err != nil {
		return nil, err
	}
	return &Writer{
		w:            bufio.NewWriter(w),
		format:       format,
		metricPrefix: metricPrefix,
		recToText:    recToText,
	}, nil
}

// Write encodes records and returns how many were written. Records with a
// missing wind component are skipped. The header, if the format has one, is
// written before the first batch.
func (w *Writer) Write(recs []era5.Record) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
		if h, ok := headers[w.format]; ok {
			if _, err := w.w.WriteString(h + "\n"); err != nil {
				return 0, err
			}
		}
	}
	text, n := recsToText(recs, w.metricPrefix, w.recToText)
	if _, err := w.w.WriteString(text); err != nil {
		return 0, err
	}
	return n, nil
}

// Flush flushes buffered output.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// WriteDataset writes every timestep of a dataset and returns the number of
// records written.
func (w *Writer) WriteDataset(d *era5.Dataset, uName, vName string) (int, error) {
	n := 0
	for t := range d.Times {
		recs, err := d.Records(t, uName, vName)
		if err != nil {
			return n, err
		}
		written, err := w.Write(recs)
		n += written
		if err != nil {
			return n, err
		}
	}
	return n, w.Flush()
}
