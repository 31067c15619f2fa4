package pattern

import "math"

// TimeScale samples its child at Scalar*t.
type TimeScale struct {
	Pattern Pattern
	Scalar  float64
}

func ScaleTime(p Pattern, scalar float64) *TimeScale {
	return &TimeScale{Pattern: p, Scalar: scalar}
}

func (s *TimeScale) Sample(t float64) float64 { return s.Pattern.Sample(s.Scalar * t) }
func (s *TimeScale) Duration() float64        { return s.Pattern.Duration() }
func (s *TimeScale) Reset()                   { s.Pattern.Reset() }
func (s *TimeScale) Children() []Pattern      { return []Pattern{s.Pattern} }

// IntensityScale multiplies its child's output by Scalar.
type IntensityScale struct {
	Pattern Pattern
	Scalar  float64
}

func ScaleIntensity(p Pattern, scalar float64) *IntensityScale {
	return &IntensityScale{Pattern: p, Scalar: scalar}
}

func (s *IntensityScale) Sample(t float64) float64 { return s.Scalar * s.Pattern.Sample(t) }
func (s *IntensityScale) Duration() float64        { return s.Pattern.Duration() }
func (s *IntensityScale) Reset()                   { s.Pattern.Reset() }
func (s *IntensityScale) Children() []Pattern      { return []Pattern{s.Pattern} }

// pair is the shared shape of the binary arithmetic combinators. Its duration
// is the longer of the two children.
type pair struct {
	A, B Pattern
}

func (p *pair) Duration() float64   { return math.Max(p.A.Duration(), p.B.Duration()) }
func (p *pair) Reset()              { p.A.Reset(); p.B.Reset() }
func (p *pair) Children() []Pattern { return []Pattern{p.A, p.B} }

// SumOf adds two patterns.
type SumOf struct{ pair }

func Sum(a, b Pattern) *SumOf { return &SumOf{pair{a, b}} }

func (s *SumOf) Sample(t float64) float64 { return s.A.Sample(t) + s.B.Sample(t) }

// Difference subtracts B from A.
type Difference struct{ pair }

func Subtract(a, b Pattern) *Difference { return &Difference{pair{a, b}} }

func (d *Difference) Sample(t float64) float64 { return d.A.Sample(t) - d.B.Sample(t) }

// Mean averages two patterns.
type Mean struct{ pair }

func Average(a, b Pattern) *Mean { return &Mean{pair{a, b}} }

func (m *Mean) Sample(t float64) float64 { return (m.A.Sample(t) + m.B.Sample(t)) / 2 }

// Clamped limits its child to [Floor, Ceiling].
type Clamped struct {
	Pattern Pattern
	Floor   float64
	Ceiling float64
}

func Clamp(p Pattern, floor, ceiling float64) *Clamped {
	return &Clamped{Pattern: p, Floor: floor, Ceiling: ceiling}
}

// ClampValid clamps to the range devices accept, [0, 1].
func ClampValid(p Pattern) *Clamped { return Clamp(p, 0, 1) }

func (c *Clamped) Sample(t float64) float64 {
	return math.Min(math.Max(c.Pattern.Sample(t), c.Floor), c.Ceiling)
}

func (c *Clamped) Duration() float64   { return c.Pattern.Duration() }
func (c *Clamped) Reset()              { c.Pattern.Reset() }
func (c *Clamped) Children() []Pattern { return []Pattern{c.Pattern} }

func (c *Clamped) Validate() error {
	if math.IsNaN(c.Floor) || math.IsNaN(c.Ceiling) || c.Floor > c.Ceiling {
		return invalid("clamp", "bounds", "must have floor <= ceiling, got [%v, %v]", c.Floor, c.Ceiling)
	}
	return nil
}

var (
	sigmoidLow  = math.SmallestNonzeroFloat64
	sigmoidHigh = math.Nextafter(1, 0)
)

// Sigmoid maps any output of its child into (0, 1) through 1/(1+e^-x).
type Sigmoid struct {
	Pattern Pattern
}

func ScaleValid(p Pattern) *Sigmoid { return &Sigmoid{Pattern: p} }

func (s *Sigmoid) Sample(t float64) float64 {
	v := 1 / (1 + math.Exp(-s.Pattern.Sample(t)))
	if math.IsNaN(v) {
		return 0.5
	}
	// Large inputs round to exactly 0 or 1 in float64.
	return math.Min(math.Max(v, sigmoidLow), sigmoidHigh)
}

func (s *Sigmoid) Duration() float64   { return s.Pattern.Duration() }
func (s *Sigmoid) Reset()              { s.Pattern.Reset() }
func (s *Sigmoid) Children() []Pattern { return []Pattern{s.Pattern} }

// Shifted skips the first Offset seconds of its child.
type Shifted struct {
	Pattern Pattern
	Offset  float64
}

func Shift(p Pattern, offset float64) *Shifted { return &Shifted{Pattern: p, Offset: offset} }

func (s *Shifted) Sample(t float64) float64 { return s.Pattern.Sample(t + s.Offset) }

// Duration is never negative; an offset past the child's end leaves nothing.
func (s *Shifted) Duration() float64 {
	return math.Max(0, s.Pattern.Duration()-s.Offset)
}

func (s *Shifted) Reset()              { s.Pattern.Reset() }
func (s *Shifted) Children() []Pattern { return []Pattern{s.Pattern} }

func (s *Shifted) Validate() error {
	if math.IsNaN(s.Offset) || s.Offset < 0 {
		return invalid("shift", "offset", "must be >= 0, got %v", s.Offset)
	}
	if d := s.Pattern.Duration(); s.Offset > d {
		return invalid("shift", "offset", "%v exceeds child duration %v", s.Offset, d)
	}
	return nil
}

// Repeated plays its child Count times. Fractional counts end partway
// through the last cycle.
type Repeated struct {
	Pattern Pattern
	Count   float64
}

func Repeat(p Pattern, count float64) *Repeated { return &Repeated{Pattern: p, Count: count} }

func (r *Repeated) Sample(t float64) float64 {
	return r.Pattern.Sample(wrap(t, r.Pattern.Duration()))
}

func (r *Repeated) Duration() float64   { return r.Count * r.Pattern.Duration() }
func (r *Repeated) Reset()              { r.Pattern.Reset() }
func (r *Repeated) Children() []Pattern { return []Pattern{r.Pattern} }

func (r *Repeated) Validate() error {
	if math.IsNaN(r.Count) || r.Count < 0 {
		return invalid("repeat", "count", "must be >= 0, got %v", r.Count)
	}
	return nil
}

// Looped plays its child forever.
type Looped struct {
	Pattern Pattern
}

func Forever(p Pattern) *Looped { return &Looped{Pattern: p} }

func (l *Looped) Sample(t float64) float64 {
	return l.Pattern.Sample(wrap(t, l.Pattern.Duration()))
}

func (l *Looped) Duration() float64   { return Unbounded }
func (l *Looped) Reset()              { l.Pattern.Reset() }
func (l *Looped) Children() []Pattern { return []Pattern{l.Pattern} }

// wrap folds t into one cycle of length d.
func wrap(t, d float64) float64 {
	switch {
	case d <= 0:
		return 0
	case d == Unbounded:
		return t
	}
	return math.Mod(t, d)
}

// Chained plays First, then Then. Then sees time from its own start.
type Chained struct {
	First Pattern
	Then  Pattern
}

func Chain(first, then Pattern) *Chained { return &Chained{First: first, Then: then} }

func (c *Chained) Sample(t float64) float64 {
	d := c.First.Duration()
	if t < d {
		return c.First.Sample(t)
	}
	return c.Then.Sample(t - d)
}

func (c *Chained) Duration() float64   { return c.First.Duration() + c.Then.Duration() }
func (c *Chained) Reset()              { c.First.Reset(); c.Then.Reset() }
func (c *Chained) Children() []Pattern { return []Pattern{c.First, c.Then} }

// Crossfaded chains two patterns, blending linearly from First to Then over
// the last Overlap seconds of First. Then's clock starts when the blend does.
type Crossfaded struct {
	First   Pattern
	Then    Pattern
	Overlap float64
}

func Crossfade(first, then Pattern, overlap float64) *Crossfaded {
	return &Crossfaded{First: first, Then: then, Overlap: overlap}
}

func (c *Crossfaded) Sample(t float64) float64 {
	end := c.First.Duration()
	start := end - c.Overlap
	switch {
	case t < start:
		return c.First.Sample(t)
	case t < end:
		p := (t - start) / c.Overlap
		return c.First.Sample(t)*(1-p) + c.Then.Sample(t-start)*p
	default:
		return c.Then.Sample(t - start)
	}
}

func (c *Crossfaded) Duration() float64 {
	return math.Max(0, c.First.Duration()+c.Then.Duration()-c.Overlap)
}

func (c *Crossfaded) Reset()              { c.First.Reset(); c.Then.Reset() }
func (c *Crossfaded) Children() []Pattern { return []Pattern{c.First, c.Then} }

func (c *Crossfaded) Validate() error {
	if math.IsNaN(c.Overlap) || c.Overlap < 0 {
		return invalid("crossfade", "overlap", "must be >= 0, got %v", c.Overlap)
	}
	if d := c.First.Duration(); c.Overlap > d {
		return invalid("crossfade", "overlap", "%v exceeds first duration %v", c.Overlap, d)
	}
	return nil
}

// Modulated multiplies Pattern by Modulator. It lasts as long as Pattern.
type Modulated struct {
	Pattern   Pattern
	Modulator Pattern
}

func Multiply(p, modulator Pattern) *Modulated {
	return &Modulated{Pattern: p, Modulator: modulator}
}

func (m *Modulated) Sample(t float64) float64 {
	return m.Pattern.Sample(t) * m.Modulator.Sample(t)
}

func (m *Modulated) Duration() float64   { return m.Pattern.Duration() }
func (m *Modulated) Reset()              { m.Pattern.Reset(); m.Modulator.Reset() }
func (m *Modulated) Children() []Pattern { return []Pattern{m.Pattern, m.Modulator} }
