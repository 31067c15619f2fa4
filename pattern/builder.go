package pattern

// Builder wraps a pattern so combinators can be chained:
//
//	p := pattern.Build(pattern.NewSineWave(1, 2)).
//		Repeat(3).
//		Chain(pattern.NewPause(1)).
//		Forever()
//
// A Builder is itself a Pattern.
type Builder struct {
	Pattern
}

// Build starts a chain from p.
func Build(p Pattern) Builder { return Builder{Pattern: unwrap(p)} }

// unwrap keeps builders from nesting inside one another.
func unwrap(p Pattern) Pattern {
	if b, ok := p.(Builder); ok {
		return b.Pattern
	}
	return p
}

func (b Builder) Children() []Pattern { return []Pattern{b.Pattern} }

func (b Builder) ScaleTime(scalar float64) Builder {
	return Build(ScaleTime(b.Pattern, scalar))
}

func (b Builder) ScaleIntensity(scalar float64) Builder {
	return Build(ScaleIntensity(b.Pattern, scalar))
}

func (b Builder) Sum(other Pattern) Builder {
	return Build(Sum(b.Pattern, unwrap(other)))
}

func (b Builder) Subtract(other Pattern) Builder {
	return Build(Subtract(b.Pattern, unwrap(other)))
}

func (b Builder) Average(other Pattern) Builder {
	return Build(Average(b.Pattern, unwrap(other)))
}

func (b Builder) Clamp(floor, ceiling float64) Builder {
	return Build(Clamp(b.Pattern, floor, ceiling))
}

func (b Builder) ClampValid() Builder { return Build(ClampValid(b.Pattern)) }

func (b Builder) ScaleValid() Builder { return Build(ScaleValid(b.Pattern)) }

func (b Builder) Shift(offset float64) Builder {
	return Build(Shift(b.Pattern, offset))
}

func (b Builder) Repeat(count float64) Builder {
	return Build(Repeat(b.Pattern, count))
}

func (b Builder) Forever() Builder { return Build(Forever(b.Pattern)) }

func (b Builder) Chain(then Pattern) Builder {
	return Build(Chain(b.Pattern, unwrap(then)))
}

func (b Builder) Crossfade(then Pattern, overlap float64) Builder {
	return Build(Crossfade(b.Pattern, unwrap(then), overlap))
}

func (b Builder) Multiply(modulator Pattern) Builder {
	return Build(Multiply(b.Pattern, unwrap(modulator)))
}

func (b Builder) Smooth(frequency, damping float64) Builder {
	return Build(Smooth(b.Pattern, frequency, damping))
}
