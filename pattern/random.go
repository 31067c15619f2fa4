package pattern

import (
	"math"
	"math/rand/v2"
	"time"
)

// Range is a closed interval of intensities.
type Range struct {
	Min, Max float64
}

func (r Range) validate(node string) error {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || r.Max < r.Min {
		return invalid(node, "range", "must have min <= max, got [%v, %v]", r.Min, r.Max)
	}
	return nil
}

func (r Range) draw(rng *rand.Rand) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

func (r Range) clamp(v float64) float64 {
	return math.Max(r.Min, math.Min(r.Max, v))
}

// RandomOption configures the randomized generators.
type RandomOption func(*randomConfig)

type randomConfig struct {
	rng *rand.Rand
	now func() time.Time
}

// WithSeed makes a generator deterministic.
func WithSeed(seed uint64) RandomOption {
	return func(c *randomConfig) {
		c.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithClock replaces the wall clock used by RandomEvery.
func WithClock(now func() time.Time) RandomOption {
	return func(c *randomConfig) {
		if now != nil {
			c.now = now
		}
	}
}

func applyRandomOptions(opts []RandomOption) randomConfig {
	cfg := randomConfig{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.rng == nil {
		cfg.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return cfg
}

// Random draws a fresh value from its range on every sample.
type Random struct {
	Range  Range
	Length float64
	rng    *rand.Rand
}

func NewRandom(r Range, length float64, opts ...RandomOption) *Random {
	cfg := applyRandomOptions(opts)
	return &Random{Range: r, Length: length, rng: cfg.rng}
}

func (r *Random) Sample(float64) float64 { return r.Range.draw(r.rng) }
func (r *Random) Duration() float64      { return r.Length }
func (r *Random) Reset()                 {}

func (r *Random) Validate() error {
	if err := r.Range.validate("random"); err != nil {
		return err
	}
	return checkLength("random", "duration", r.Length)
}

// RandomEvery holds a random value and redraws it once Interval seconds of
// wall-clock time have passed since the last draw.
type RandomEvery struct {
	Range    Range
	Interval float64
	Length   float64

	rng   *rand.Rand
	now   func() time.Time
	last  time.Time
	value float64
}

func NewRandomEvery(r Range, interval, length float64, opts ...RandomOption) *RandomEvery {
	cfg := applyRandomOptions(opts)
	re := &RandomEvery{Range: r, Interval: interval, Length: length, rng: cfg.rng, now: cfg.now}
	re.Reset()
	return re
}

func (r *RandomEvery) Sample(float64) float64 {
	now := r.now()
	if now.Sub(r.last).Seconds() >= r.Interval {
		r.value = r.Range.draw(r.rng)
		r.last = now
	}
	return r.value
}

func (r *RandomEvery) Duration() float64 { return r.Length }

// Reset draws a new value and restarts the interval.
func (r *RandomEvery) Reset() {
	r.value = r.Range.draw(r.rng)
	r.last = r.now()
}

func (r *RandomEvery) Validate() error {
	if err := r.Range.validate("random-every"); err != nil {
		return err
	}
	if math.IsNaN(r.Interval) || r.Interval <= 0 {
		return invalid("random-every", "interval", "must be > 0, got %v", r.Interval)
	}
	return checkLength("random-every", "duration", r.Length)
}

// RandomWalk nudges a running value up by Increase when a random candidate
// lands above it, and down by Decrease otherwise. The value stays in Range.
type RandomWalk struct {
	Range    Range
	Increase float64
	Decrease float64
	Length   float64

	rng   *rand.Rand
	state float64
}

func NewRandomWalk(r Range, increase, decrease, length float64, opts ...RandomOption) *RandomWalk {
	cfg := applyRandomOptions(opts)
	return &RandomWalk{Range: r, Increase: increase, Decrease: decrease, Length: length, rng: cfg.rng}
}

func (w *RandomWalk) Sample(float64) float64 {
	if w.Range.draw(w.rng) > w.state {
		w.state += w.Increase
	} else {
		w.state -= w.Decrease
	}
	w.state = w.Range.clamp(w.state)
	return w.state
}

func (w *RandomWalk) Duration() float64 { return w.Length }

// Reset puts the walk back at zero.
func (w *RandomWalk) Reset() { w.state = 0 }

// State returns the current walk position.
func (w *RandomWalk) State() float64 { return w.state }

func (w *RandomWalk) Validate() error {
	if err := w.Range.validate("random-walk"); err != nil {
		return err
	}
	if w.Increase < 0 || w.Decrease < 0 {
		return invalid("random-walk", "step", "must be >= 0, got +%v/-%v", w.Increase, w.Decrease)
	}
	return checkLength("random-walk", "duration", w.Length)
}
