// Package preset holds named pattern recipes.
package preset

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"go-pulse/pattern"
)

var ErrUnknown = errors.New("unknown preset")

// Preset builds a fresh pattern tree on every call, so each caller owns
// its nodes.
type Preset struct {
	Name        string
	Description string
	Build       func(opts ...pattern.RandomOption) pattern.Pattern
}

// Presets contains all available recipes. Every one stays inside [0, 1].
var Presets = map[string]Preset{
	"wave": {
		Name:        "Wave",
		Description: "slow sine swell, 4 s per cycle",
		Build: func(...pattern.RandomOption) pattern.Pattern {
			return pattern.Forever(pattern.NewSineWave(1, 4))
		},
	},
	"pulse": {
		Name:        "Pulse",
		Description: "half a second on, half a second off",
		Build: func(...pattern.RandomOption) pattern.Pattern {
			return pattern.Build(pattern.NewConstant(0.8, 0.5)).
				Chain(pattern.NewPause(0.5)).
				Forever()
		},
	},
	"ramp": {
		Name:        "Ramp",
		Description: "6 s climb, 2 s fall, four times",
		Build: func(...pattern.RandomOption) pattern.Pattern {
			return pattern.Build(pattern.NewLinear(0, 1, 6)).
				Chain(pattern.NewLinear(1, 0, 2)).
				Repeat(4)
		},
	},
	"tease": {
		Name:        "Tease",
		Description: "slow build that fades out just before the top",
		Build: func(...pattern.RandomOption) pattern.Pattern {
			return pattern.Build(pattern.NewLinear(0, 0.9, 5)).
				Crossfade(pattern.NewLinear(0.9, 0, 1.5), 0.5).
				Chain(pattern.NewPause(1)).
				Forever()
		},
	},
	"storm": {
		Name:        "Storm",
		Description: "random gusts over a choppy square wave",
		Build: func(opts ...pattern.RandomOption) pattern.Pattern {
			gusts := pattern.NewRandomEvery(pattern.Range{Min: 0.2, Max: 0.7}, 0.3, 12, opts...)
			return pattern.Build(gusts).
				Sum(pattern.NewSquareWave(0.3, 1.5)).
				ClampValid().
				Forever()
		},
	},
	"heartbeat": {
		Name:        "Heartbeat",
		Description: "lub-dub at 60 bpm for a minute",
		Build: func(...pattern.RandomOption) pattern.Pattern {
			lub := pattern.Chain(pattern.NewConstant(1, 0.12), pattern.NewPause(0.12))
			dub := pattern.Chain(pattern.NewConstant(0.7, 0.12), pattern.NewPause(0.64))
			return pattern.Build(lub).Chain(dub).Repeat(60)
		},
	},
	"drift": {
		Name:        "Drift",
		Description: "wandering random walk, spring smoothed",
		Build: func(opts ...pattern.RandomOption) pattern.Pattern {
			walk := pattern.NewRandomWalk(pattern.Range{Min: 0, Max: 1}, 0.05, 0.03, pattern.Unbounded, opts...)
			return pattern.Build(walk).Smooth(2, 1).ClampValid()
		},
	},
	"surge": {
		Name:        "Surge",
		Description: "saw bursts that grow over 30 s, then start over",
		Build: func(...pattern.RandomOption) pattern.Pattern {
			return pattern.Build(pattern.NewSawWave(1, 2)).
				Repeat(15).
				Multiply(pattern.NewLinear(0.3, 1, 30)).
				Forever()
		},
	},
}

// Names returns preset names in sorted order.
func Names() []string {
	return slices.Sorted(maps.Keys(Presets))
}

// Get builds the named preset. Options reach its random generators.
func Get(name string, opts ...pattern.RandomOption) (pattern.Pattern, error) {
	p, ok := Presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return p.Build(opts...), nil
}
