package render

import (
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/rtm0/era5wind/internal/particles"
)

// Quiver draws wind arrows at every Step-th grid point. Arrow lengths are
// proportional to speed, the longest spanning one arrow cell.
type Quiver struct {
	Lat, Lon []float64
	U, V     [][]float32
	Step     int
	draw.LineStyle
}

// Plot implements plot.Plotter.
func (q *Quiver) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	step := max(q.Step, 1)
	cell := math.Abs(float64(trX(q.Lon[min(step, len(q.Lon)-1)]) - trX(q.Lon[0])))
	if cy := math.Abs(float64(trY(q.Lat[min(step, len(q.Lat)-1)]) - trY(q.Lat[0]))); cy > 0 && (cy < cell || cell == 0) {
		cell = cy
	}
	maxSpeed := 0.0
	for i := 0; i < len(q.Lat); i += step {
		for j := 0; j < len(q.Lon); j += step {
			if s := math.Hypot(float64(q.U[i][j]), float64(q.V[i][j])); s > maxSpeed {
				maxSpeed = s
			}
		}
	}
	if maxSpeed == 0 || cell == 0 {
		return
	}
	for i := 0; i < len(q.Lat); i += step {
		for j := 0; j < len(q.Lon); j += step {
			u, v := float64(q.U[i][j]), float64(q.V[i][j])
			if math.IsNaN(u) || math.IsNaN(v) {
				continue
			}
			x0, y0 := trX(q.Lon[j]), trY(q.Lat[i])
			if !c.Contains(vg.Point{X: x0, Y: y0}) {
				continue
			}
			scale := 0.9 * cell / maxSpeed
			x1 := x0 + vg.Length(u*scale)
			y1 := y0 + vg.Length(v*scale)
			arrow(c, q.LineStyle, x0, y0, x1, y1)
		}
	}
}

func arrow(c draw.Canvas, sty draw.LineStyle, x0, y0, x1, y1 vg.Length) {
	dx, dy := float64(x1-x0), float64(y1-y0)
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	c.StrokeLine2(sty, x0, y0, x1, y1)
	head := math.Max(0.3*l, 2)
	a := math.Atan2(dy, dx)
	for _, side := range []float64{-1, 1} {
		h := a + math.Pi - side*math.Pi/7
		c.StrokeLine2(sty, x1, y1, x1+vg.Length(head*math.Cos(h)), y1+vg.Length(head*math.Sin(h)))
	}
}

// DataRange implements plot.DataRanger.
func (q *Quiver) DataRange() (xmin, xmax, ymin, ymax float64) {
	xmin, xmax = minMax(q.Lon)
	ymin, ymax = minMax(q.Lat)
	return xmin, xmax, ymin, ymax
}

func minMax(axis []float64) (float64, float64) {
	a, b := axis[0], axis[len(axis)-1]
	if a > b {
		return b, a
	}
	return a, b
}

// Trails draws particle segments of the last frames with older segments
// fading out.
type Trails struct {
	// Frames holds the segments of consecutive steps, oldest first.
	Frames [][]particles.Segment
	// ColorMap colours segments by speed. Nil draws them white.
	ColorMap palette.ColorMap
	Width    vg.Length
}

// Plot implements plot.Plotter.
func (t *Trails) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	n := len(t.Frames)
	for k, segs := range t.Frames {
		alpha := float64(k+1) / float64(n)
		for _, s := range segs {
			var col color.Color = color.White
			if t.ColorMap != nil {
				col = colorAt(t.ColorMap, s.Speed)
			}
			sty := draw.LineStyle{Color: fade(col, alpha), Width: t.Width}
			x0, y0 := trX(s.Lon0), trY(s.Lat0)
			x1, y1 := trX(s.Lon1), trY(s.Lat1)
			if !c.Contains(vg.Point{X: x0, Y: y0}) || !c.Contains(vg.Point{X: x1, Y: y1}) {
				continue
			}
			c.StrokeLine2(sty, x0, y0, x1, y1)
		}
	}
}

func colorAt(cm palette.ColorMap, v float64) color.Color {
	if v < cm.Min() {
		v = cm.Min()
	}
	if v > cm.Max() {
		v = cm.Max()
	}
	col, err := cm.At(v)
	if err != nil {
		return color.White
	}
	return col
}

func fade(c color.Color, alpha float64) color.Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = uint8(float64(n.A) * alpha)
	return n
}
