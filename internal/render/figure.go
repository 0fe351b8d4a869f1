// Package render draws wind fields as static plots and animations.
package render

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	_ "gonum.org/v1/plot/vg/vgpdf"
	_ "gonum.org/v1/plot/vg/vgsvg"

	"github.com/rtm0/era5wind/internal/era5"
)

const (
	defaultWidth  = 20 * vg.Centimeter
	defaultHeight = 14 * vg.Centimeter
	colorBarWidth = 2.5 * vg.Centimeter
	paletteSize   = 64
	maxArrows     = 25
)

// Options controls the appearance of a wind plot.
type Options struct {
	Width, Height vg.Length
	// Title is prefixed to the timestamp of the field.
	Title string
	// UVar and VVar name the wind components, u10 and v10 by default.
	UVar, VVar string
	// Min and Max fix the colour scale. Both zero scales to the data.
	Min, Max float64
	// ArrowStep draws an arrow every ArrowStep grid points. Zero picks a step
	// that keeps about 25 arrows across the plot; negative disables arrows.
	ArrowStep int
}

func (o Options) withDefaults() Options {
	if o.Width == 0 {
		o.Width = defaultWidth
	}
	if o.Height == 0 {
		o.Height = defaultHeight
	}
	if o.UVar == "" {
		o.UVar = "u10"
	}
	if o.VVar == "" {
		o.VVar = "v10"
	}
	if o.Title == "" {
		o.Title = "10 m wind"
	}
	return o
}

// Figure is a wind plot with its colour bar.
type Figure struct {
	Plot     *plot.Plot
	ColorBar *plot.Plot
	width    vg.Length
	height   vg.Length
}

// WindPlot plots the wind speed of a snapshot as a heat map overlaid with
// direction arrows. The snapshot must carry coordinates and the u and v
// fields.
func WindPlot(snap *era5.Snapshot, opts Options) (*Figure, error) {
	opts = opts.withDefaults()
	u, ok := snap.Fields[opts.UVar]
	if !ok {
		return nil, fmt.Errorf("snapshot has no %q field", opts.UVar)
	}
	v, ok := snap.Fields[opts.VVar]
	if !ok {
		return nil, fmt.Errorf("snapshot has no %q field", opts.VVar)
	}
	units := u.Units
	if units == "" {
		units = "m s**-1"
	}
	speed := speedOf(u.Values, v.Values)
	fig, err := newFigure(snap.Lat, snap.Lon, speed, units, snap.Time, opts)
	if err != nil {
		return nil, err
	}
	if opts.ArrowStep >= 0 {
		fig.Plot.Add(&Quiver{
			Lat:       snap.Lat,
			Lon:       snap.Lon,
			U:         u.Values,
			V:         v.Values,
			Step:      arrowStep(opts.ArrowStep, len(snap.Lon)),
			LineStyle: draw.LineStyle{Color: color.Black, Width: vg.Points(0.7)},
		})
	}
	return fig, nil
}

func arrowStep(step, n int) int {
	if step > 0 {
		return step
	}
	return max(1, n/maxArrows)
}

// newFigure creates the heat map part of a figure.
func newFigure(lat, lon []float64, speed [][]float32, units string, ts time.Time, opts Options) (*Figure, error) {
	grid, err := newSpeedGrid(lat, lon, speed)
	if err != nil {
		return nil, err
	}
	lo, hi := opts.Min, opts.Max
	if lo == 0 && hi == 0 {
		var ok bool
		if lo, hi, ok = gridRange(speed); !ok {
			return nil, fmt.Errorf("no valid wind values at %s", ts.Format(time.RFC3339))
		}
	}
	if hi <= lo {
		hi = lo + 1
	}

	cm := colorMap(lo, hi)
	hm := plotter.NewHeatMap(grid, cm.Palette(paletteSize))
	hm.Min, hm.Max = lo, hi
	hm.NaN = color.Transparent

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s %s", opts.Title, ts.UTC().Format("2006-01-02 15:04 MST"))
	p.X.Label.Text = "longitude (°)"
	p.Y.Label.Text = "latitude (°)"
	p.Add(hm)

	cb := plot.New()
	cb.Add(&plotter.ColorBar{ColorMap: cm, Vertical: true})
	cb.HideX()
	cb.Y.Label.Text = "wind speed (" + units + ")"
	cb.Y.Padding = 0

	return &Figure{Plot: p, ColorBar: cb, width: opts.Width, height: opts.Height}, nil
}

func colorMap(lo, hi float64) palette.ColorMap {
	cm := moreland.ExtendedBlackBody()
	cm.SetMin(lo)
	cm.SetMax(hi)
	return cm
}

// Draw draws the figure onto a canvas, the colour bar on the right.
func (f *Figure) Draw(c draw.Canvas) {
	w := c.Max.X - c.Min.X
	main := draw.Crop(c, 0, -colorBarWidth, 0, 0)
	f.Plot.Draw(main)
	bar := draw.Crop(c, w-colorBarWidth+vg.Points(8), 0, vg.Points(36), -vg.Points(24))
	f.ColorBar.Draw(bar)
}

// WriteTo writes the figure in the given format: png, jpg, tiff, svg, pdf or
// eps.
func (f *Figure) WriteTo(w io.Writer, format string) (int64, error) {
	c, err := draw.NewFormattedCanvas(f.width, f.height, format)
	if err != nil {
		return 0, err
	}
	f.Draw(draw.New(c))
	return c.WriteTo(w)
}

// Image rasterizes the figure.
func (f *Figure) Image() image.Image {
	c := vgimg.New(f.width, f.height)
	f.Draw(draw.New(c))
	return c.Image()
}

// Save writes the figure to path, the format chosen by the file extension.
func (f *Figure) Save(path string) (err error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "" {
		return fmt.Errorf("%s: missing file extension", path)
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = f.WriteTo(out, format)
	return err
}
