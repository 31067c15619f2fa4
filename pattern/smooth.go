package pattern

import (
	"math"

	"github.com/charmbracelet/harmonica"
)

// smoothFPS is the rate the spring is integrated at, independent of how
// often the pattern is sampled.
const smoothFPS = 60

// maxSmoothSteps bounds catch-up work after a long gap between samples.
const maxSmoothSteps = 10 * smoothFPS

// Smoothed eases towards its child's output with a damped spring, taking the
// edge off square waves and random jumps.
type Smoothed struct {
	Pattern   Pattern
	Frequency float64 // angular frequency; higher follows faster
	Damping   float64 // 1 is critically damped, below 1 overshoots

	spring  harmonica.Spring
	pos     float64
	vel     float64
	last    float64
	started bool
}

func Smooth(p Pattern, frequency, damping float64) *Smoothed {
	return &Smoothed{
		Pattern:   p,
		Frequency: frequency,
		Damping:   damping,
		spring:    harmonica.NewSpring(harmonica.FPS(smoothFPS), frequency, damping),
	}
}

func (s *Smoothed) Sample(t float64) float64 {
	target := s.Pattern.Sample(t)
	if !s.started || t < s.last {
		s.pos, s.vel, s.last, s.started = target, 0, t, true
		return s.pos
	}

	dt := 1.0 / smoothFPS
	gap := math.Floor((t - s.last) / dt)
	if !(gap <= maxSmoothSteps) {
		s.pos, s.vel, s.last = target, 0, t
		return s.pos
	}
	steps := int(gap)
	for range steps {
		s.pos, s.vel = s.spring.Update(s.pos, s.vel, target)
	}
	s.last += float64(steps) * dt
	return s.pos
}

func (s *Smoothed) Duration() float64   { return s.Pattern.Duration() }
func (s *Smoothed) Children() []Pattern { return []Pattern{s.Pattern} }

func (s *Smoothed) Reset() {
	s.pos, s.vel, s.last, s.started = 0, 0, 0, false
	s.Pattern.Reset()
}

func (s *Smoothed) Validate() error {
	if math.IsNaN(s.Frequency) || s.Frequency <= 0 {
		return invalid("smooth", "frequency", "must be > 0, got %v", s.Frequency)
	}
	if math.IsNaN(s.Damping) || s.Damping < 0 {
		return invalid("smooth", "damping", "must be >= 0, got %v", s.Damping)
	}
	return nil
}
