package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	colorpalette "image/color/palette"
	imgdraw "image/draw"
	"image/gif"
	"io"
	"runtime"
	"sync"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/rtm0/era5wind/internal/era5"
	"github.com/rtm0/era5wind/internal/particles"
)

// Animation modes.
const (
	// ModeQuiver renders one heat map and arrow frame per timestep.
	ModeQuiver = "quiver"
	// ModeParticles renders particle trails advected through the field over
	// a heat map interpolated between timesteps.
	ModeParticles = "particles"
)

// AnimationOptions controls how an animation is produced.
type AnimationOptions struct {
	Options
	Mode string
	// FPS is the playback rate, 4 by default.
	FPS int
	// FramesPerStep is the number of frames between two timesteps in
	// particles mode, 8 by default.
	FramesPerStep int
	// TrailLength is the number of steps a particle trail spans.
	TrailLength int
	Particles   particles.Config
	// Concurrency bounds the number of frames rendered at once.
	Concurrency int
	// Progress, if set, is called after every rendered frame.
	Progress func(done, total int)
}

func (o AnimationOptions) withDefaults() AnimationOptions {
	o.Options = o.Options.withDefaults()
	if o.Mode == "" {
		o.Mode = ModeParticles
	}
	if o.FPS <= 0 {
		o.FPS = 4
	}
	if o.FramesPerStep <= 0 {
		o.FramesPerStep = 8
	}
	if o.TrailLength <= 0 {
		o.TrailLength = 6
	}
	if o.Particles == (particles.Config{}) {
		o.Particles = particles.DefaultConfig()
	}
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.NumCPU()
	}
	return o
}

// frameFunc renders frame i.
type frameFunc func(i int) (*Figure, error)

// Animate renders the dataset as an animated GIF written to w. The colour
// scale is shared by every frame.
func Animate(ctx context.Context, d *era5.Dataset, w io.Writer, opts AnimationOptions) error {
	opts = opts.withDefaults()
	uVar, ok := d.Vars[opts.UVar]
	if !ok {
		return fmt.Errorf("dataset has no %q variable", opts.UVar)
	}
	vVar, ok := d.Vars[opts.VVar]
	if !ok {
		return fmt.Errorf("dataset has no %q variable", opts.VVar)
	}
	if len(d.Times) == 0 {
		return errors.New("dataset has no timesteps")
	}
	units := uVar.Units()
	if units == "" {
		units = "m s**-1"
	}

	speeds := make([][][]float32, len(d.Times))
	for t := range d.Times {
		speeds[t] = speedOf(uVar.Values[t], vVar.Values[t])
	}
	if opts.Min == 0 && opts.Max == 0 {
		lo, hi, ok := (&era5.Variable{Values: speeds}).Range()
		if !ok {
			return errors.New("no valid wind values to animate")
		}
		opts.Min, opts.Max = lo, hi
	}

	var n int
	var frame frameFunc
	switch opts.Mode {
	case ModeQuiver:
		n = len(d.Times)
		frame = func(i int) (*Figure, error) {
			snap, err := d.Snapshot(i, []string{opts.UVar, opts.VVar}, true)
			if err != nil {
				return nil, err
			}
			return WindPlot(snap, opts.Options)
		}
	case ModeParticles:
		g, err := particles.NewGrid(d.Lat, d.Lon, uVar.Values, vVar.Values)
		if err != nil {
			return err
		}
		n = (len(d.Times)-1)*opts.FramesPerStep + 1
		segs := particles.NewSim(g, opts.Particles).Run(n)
		frame = func(i int) (*Figure, error) {
			t0 := i / opts.FramesPerStep
			f := float64(i%opts.FramesPerStep) / float64(opts.FramesPerStep)
			speed := speeds[t0]
			ts := d.Times[t0]
			if f > 0 {
				speed = blend(speeds[t0], speeds[t0+1], f)
				ts = ts.Add(time.Duration(f * float64(d.Times[t0+1].Sub(ts))))
			}
			fig, err := newFigure(d.Lat, d.Lon, speed, units, ts, opts.Options)
			if err != nil {
				return nil, err
			}
			fig.Plot.Add(&Trails{
				Frames: segs[max(0, i-opts.TrailLength+1) : i+1],
				Width:  vg.Points(0.8),
			})
			return fig, nil
		}
	default:
		return fmt.Errorf("unknown animation mode %q", opts.Mode)
	}

	frames, err := renderFrames(ctx, n, frame, opts.Concurrency, opts.Progress)
	if err != nil {
		return err
	}
	delay := max(1, 100/opts.FPS)
	anim := &gif.GIF{LoopCount: 0}
	for _, f := range frames {
		anim.Image = append(anim.Image, f)
		anim.Delay = append(anim.Delay, delay)
	}
	return gif.EncodeAll(w, anim)
}

// renderFrames renders n frames on a pool of workers and returns them in
// frame order.
func renderFrames(ctx context.Context, n int, frame frameFunc, concurrency int, progress func(done, total int)) ([]*image.Paletted, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([]*image.Paletted, n)
	jobs := make(chan int)
	progressCh := make(chan int)
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for range min(concurrency, n) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				fig, err := frame(i)
				if err != nil {
					errOnce.Do(func() {
						firstErr = fmt.Errorf("frame %d: %w", i, err)
						cancel()
					})
					continue
				}
				out[i] = quantize(fig.Image())
				progressCh <- i
			}
		}()
	}
	done := make(chan struct{})
	go func() {
		rendered := 0
		for range progressCh {
			rendered++
			if progress != nil {
				progress(rendered, n)
			}
		}
		close(done)
	}()

feed:
	for i := 0; i < n; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(progressCh)
	<-done

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func quantize(img image.Image) *image.Paletted {
	b := img.Bounds()
	p := image.NewPaletted(b, colorpalette.Plan9)
	imgdraw.FloydSteinberg.Draw(p, b, img, b.Min)
	return p
}
