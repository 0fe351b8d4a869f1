package particles

import (
	"math"
	"math/rand/v2"
	"time"
)

const metresPerDegree = 111320.0

// Config parameterises a simulation.
type Config struct {
	// Count is the number of live particles.
	Count int
	// MaxAge is the number of steps after which a particle respawns.
	MaxAge int
	// Step is the simulated time a particle is advected per step.
	Step time.Duration
	// Seed makes the simulation reproducible.
	Seed uint64
}

// DefaultConfig is tuned for regional ERA5 grids at 0.25 degree resolution.
func DefaultConfig() Config {
	return Config{Count: 2000, MaxAge: 40, Step: 15 * time.Minute, Seed: 1}
}

// Segment is the path travelled by one particle during one step.
type Segment struct {
	Lat0, Lon0 float64
	Lat1, Lon1 float64
	// Speed is the wind speed at the start of the segment in m/s.
	Speed float64
}

type particle struct {
	lat, lon float64
	age      int
}

// Sim advects particles through a Grid.
type Sim struct {
	grid *Grid
	cfg  Config
	rng  *rand.Rand
	ps   []particle

	latMin, latMax, lonMin, lonMax float64
}

// NewSim seeds cfg.Count particles uniformly over the grid.
func NewSim(g *Grid, cfg Config) *Sim {
	if cfg.Count <= 0 {
		cfg.Count = DefaultConfig().Count
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultConfig().MaxAge
	}
	if cfg.Step <= 0 {
		cfg.Step = DefaultConfig().Step
	}
	s := &Sim{
		grid: g,
		cfg:  cfg,
		rng:  rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		ps:   make([]particle, cfg.Count),
	}
	s.latMin, s.latMax, s.lonMin, s.lonMax = g.Bounds()
	for i := range s.ps {
		s.spawn(&s.ps[i])
		// spread ages so that particles do not respawn in waves
		s.ps[i].age = s.rng.IntN(cfg.MaxAge)
	}
	return s
}

func (s *Sim) spawn(p *particle) {
	p.lat = s.latMin + s.rng.Float64()*(s.latMax-s.latMin)
	p.lon = s.lonMin + s.rng.Float64()*(s.lonMax-s.lonMin)
	p.age = 0
}

// Step advects every particle using the wind at fractional timestep t and
// returns the segments travelled. Particles that are too old, leave the grid
// or hit a missing value respawn and produce no segment for this step.
func (s *Sim) Step(t float64) []Segment {
	dt := s.cfg.Step.Seconds()
	segs := make([]Segment, 0, len(s.ps))
	for i := range s.ps {
		p := &s.ps[i]
		if p.age >= s.cfg.MaxAge {
			s.spawn(p)
			continue
		}
		u, v, ok := s.grid.Sample(t, p.lat, p.lon)
		if !ok {
			s.spawn(p)
			continue
		}
		lat := p.lat + v*dt/metresPerDegree
		cos := math.Cos(p.lat * math.Pi / 180)
		lon := p.lon
		if cos > 1e-6 {
			lon += u * dt / (metresPerDegree * cos)
		}
		segs = append(segs, Segment{
			Lat0: p.lat, Lon0: p.lon,
			Lat1: lat, Lon1: lon,
			Speed: math.Hypot(u, v),
		})
		p.lat, p.lon = lat, lon
		p.age++
	}
	return segs
}

// Run advects the particles over frames steps spread evenly across the
// grid's timesteps and returns the segments of every step.
func (s *Sim) Run(frames int) [][]Segment {
	out := make([][]Segment, frames)
	last := float64(s.grid.Steps() - 1)
	for f := 0; f < frames; f++ {
		t := 0.0
		if frames > 1 {
			t = last * float64(f) / float64(frames-1)
		}
		out[f] = s.Step(t)
	}
	return out
}
