package pattern

import "math"

// Pause is silence for a fixed time.
type Pause struct {
	Length float64
}

func NewPause(length float64) *Pause { return &Pause{Length: length} }

func (p *Pause) Sample(float64) float64 { return 0 }
func (p *Pause) Duration() float64      { return p.Length }
func (p *Pause) Reset()                 {}
func (p *Pause) Validate() error        { return checkLength("pause", "duration", p.Length) }

// Constant holds one level for a fixed time.
type Constant struct {
	Level  float64
	Length float64
}

func NewConstant(level, length float64) *Constant {
	return &Constant{Level: level, Length: length}
}

func (c *Constant) Sample(float64) float64 { return c.Level }
func (c *Constant) Duration() float64      { return c.Length }
func (c *Constant) Reset()                 {}
func (c *Constant) Validate() error        { return checkLength("constant", "duration", c.Length) }

// Linear ramps from From to To over its duration.
type Linear struct {
	From, To float64
	Length   float64
}

func NewLinear(from, to, length float64) *Linear {
	return &Linear{From: from, To: to, Length: length}
}

func (l *Linear) Sample(t float64) float64 {
	if l.Length == 0 {
		return l.To
	}
	return l.From + (l.To-l.From)*t/l.Length
}

func (l *Linear) Duration() float64 { return l.Length }
func (l *Linear) Reset()            {}
func (l *Linear) Validate() error   { return checkLength("linear", "duration", l.Length) }

// SawWave rises from 0 to Amplitude once per Wavelength, then drops.
type SawWave struct {
	Amplitude  float64
	Wavelength float64
}

func NewSawWave(amplitude, wavelength float64) *SawWave {
	return &SawWave{Amplitude: amplitude, Wavelength: wavelength}
}

func (s *SawWave) Sample(t float64) float64 {
	return s.Amplitude * math.Mod(t/s.Wavelength, 1)
}

func (s *SawWave) Duration() float64 { return s.Wavelength }
func (s *SawWave) Reset()            {}
func (s *SawWave) Validate() error   { return checkWavelength("saw", s.Wavelength) }

// TriangleWave climbs from 0 to Amplitude and back once per Wavelength.
type TriangleWave struct {
	Amplitude  float64
	Wavelength float64
}

func NewTriangleWave(amplitude, wavelength float64) *TriangleWave {
	return &TriangleWave{Amplitude: amplitude, Wavelength: wavelength}
}

func (w *TriangleWave) Sample(t float64) float64 {
	half := w.Wavelength / 2
	v := 2 * w.Amplitude / w.Wavelength * math.Abs(math.Mod(t-half, w.Wavelength)-half)
	// math.Mod keeps the sign of t-half, so the first half cycle overshoots.
	return math.Min(v, w.Amplitude)
}

func (w *TriangleWave) Duration() float64 { return w.Wavelength }
func (w *TriangleWave) Reset()            {}
func (w *TriangleWave) Validate() error   { return checkWavelength("triangle", w.Wavelength) }

// SquareWave is Amplitude for the first half of each cycle and 0 after.
type SquareWave struct {
	Amplitude  float64
	Wavelength float64
}

func NewSquareWave(amplitude, wavelength float64) *SquareWave {
	return &SquareWave{Amplitude: amplitude, Wavelength: wavelength}
}

func (w *SquareWave) Sample(t float64) float64 {
	if math.Mod(t, w.Wavelength) < w.Wavelength/2 {
		return w.Amplitude
	}
	return 0
}

func (w *SquareWave) Duration() float64 { return w.Wavelength }
func (w *SquareWave) Reset()            {}
func (w *SquareWave) Validate() error   { return checkWavelength("square", w.Wavelength) }

// SineWave oscillates between 0 and Amplitude. Each cycle starts at its
// minimum, so a fresh run begins quietly.
type SineWave struct {
	Amplitude  float64
	Wavelength float64
}

func NewSineWave(amplitude, wavelength float64) *SineWave {
	return &SineWave{Amplitude: amplitude, Wavelength: wavelength}
}

func (w *SineWave) Sample(t float64) float64 {
	half := w.Amplitude / 2
	return half*math.Cos(2*math.Pi/w.Wavelength*(t+w.Wavelength/2)) + half
}

func (w *SineWave) Duration() float64 { return w.Wavelength }
func (w *SineWave) Reset()            {}
func (w *SineWave) Validate() error   { return checkWavelength("sine", w.Wavelength) }
