// Package pattern builds time-varying intensity signals out of primitive
// shapes and combinators. Every node is sampled as a function of elapsed
// seconds, so a composed tree can be evaluated lazily at any tick rate.
package pattern

import (
	"errors"
	"fmt"
	"math"
	"reflect"
)

// Unbounded is the duration reported by patterns that never end.
const Unbounded = math.MaxFloat64

// Pattern produces an intensity for an elapsed time.
//
// Sampling a primitive past its Duration is not specified: some shapes keep
// producing sensible values, others don't. Wrap with Repeat, Forever or Chain
// when defined behaviour past one cycle is needed.
type Pattern interface {
	// Sample returns the intensity at t seconds.
	Sample(t float64) float64
	// Duration returns the length of one cycle in seconds. It depends only on
	// the node's configuration, never on sampling state.
	Duration() float64
	// Reset returns stateful nodes to their initial state.
	Reset()
}

// Parent is implemented by composite nodes.
type Parent interface {
	Children() []Pattern
}

// Validator is implemented by nodes with configuration that can be wrong.
type Validator interface {
	Validate() error
}

var (
	// ErrInvalid is wrapped by every configuration error.
	ErrInvalid = errors.New("invalid pattern")

	// ErrSharedNode reports a node that appears twice in one tree.
	ErrSharedNode = errors.New("pattern node has more than one parent")
)

// ConfigError describes a rejected node parameter.
type ConfigError struct {
	Node   string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", e.Node, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalid }

func invalid(node, field, format string, args ...any) error {
	return &ConfigError{Node: node, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Walk calls fn for p and every node below it, depth first. It stops at the
// first error fn returns. A nil child is an error, reported before fn sees
// its parent.
func Walk(p Pattern, fn func(Pattern) error) error {
	if p == nil {
		return nil
	}
	var children []Pattern
	if parent, ok := p.(Parent); ok {
		children = parent.Children()
	}
	for _, c := range children {
		if isNil(c) {
			return fmt.Errorf("%w: nil child of %T", ErrInvalid, p)
		}
	}
	if err := fn(p); err != nil {
		return err
	}
	for _, c := range children {
		if err := Walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks every node of a tree. It rejects bad parameters and nodes
// that are owned by more than one parent.
func Validate(p Pattern) error {
	if isNil(p) {
		return fmt.Errorf("%w: nil pattern", ErrInvalid)
	}
	seen := map[uintptr]bool{}
	return Walk(p, func(n Pattern) error {
		if v := reflect.ValueOf(n); v.Kind() == reflect.Pointer {
			addr := v.Pointer()
			if seen[addr] {
				return fmt.Errorf("%w: %T", ErrSharedNode, n)
			}
			seen[addr] = true
		}
		if v, ok := n.(Validator); ok {
			return v.Validate()
		}
		return nil
	})
}

// isNil also catches typed nil pointers stored in a Pattern.
func isNil(p Pattern) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// Render samples p at rate samples per second, starting at t=0.
func Render(p Pattern, rate float64, n int) []float64 {
	if n <= 0 || rate <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = p.Sample(float64(i) / rate)
	}
	return out
}

// Func is a pattern defined by plain functions, for one-off shapes that
// don't deserve their own type.
type Func struct {
	SampleFunc func(t float64) float64
	Length     float64
}

// NewFunc wraps fn as a pattern lasting length seconds.
func NewFunc(fn func(t float64) float64, length float64) *Func {
	return &Func{SampleFunc: fn, Length: length}
}

func (f *Func) Sample(t float64) float64 { return f.SampleFunc(t) }
func (f *Func) Duration() float64        { return f.Length }
func (f *Func) Reset()                   {}

func (f *Func) Validate() error {
	if f.SampleFunc == nil {
		return invalid("func", "sample", "is nil")
	}
	return checkLength("func", "duration", f.Length)
}

func checkLength(node, field string, v float64) error {
	if math.IsNaN(v) || v < 0 {
		return invalid(node, field, "must be >= 0, got %v", v)
	}
	return nil
}

func checkWavelength(node string, v float64) error {
	if math.IsNaN(v) || v <= 0 {
		return invalid(node, "wavelength", "must be > 0, got %v", v)
	}
	return nil
}
