package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	MeterFull  rune   // █ filled cell
	MeterEmpty rune   // ░ unfilled cell
	Spark      []rune // ▁ .. █, low to high
	Focus      rune   // ▶ focused device
	Override   rune   // ◆ level comes from an override
	Global     rune   // · level comes from the global pattern
}

// New builds a theme on palette; nil means Default().
func New(palette *Palette) *Theme {
	if palette == nil {
		palette = Default()
	}
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			MeterFull:  '█',
			MeterEmpty: '░',
			Spark:      []rune("▁▂▃▄▅▆▇█"),
			Focus:      '▶',
			Override:   '◆',
			Global:     '·',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleMuted   = 0.15
	RoleFG      = 0.5
	RoleAccent  = 0.65
	RoleWarning = 0.8
	RoleSuccess = 1.0
)

func (t *Theme) FG() lipgloss.Color      { return t.Color(RoleFG) }
func (t *Theme) Accent() lipgloss.Color  { return t.Color(RoleAccent) }
func (t *Theme) Muted() lipgloss.Color   { return t.Color(RoleMuted) }
func (t *Theme) Warning() lipgloss.Color { return t.Color(RoleWarning) }
func (t *Theme) Success() lipgloss.Color { return t.Color(RoleSuccess) }

// Color returns lipgloss color for any normalized value 0-1. Intensities
// map straight onto it.
func (t *Theme) Color(norm float64) lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(norm))
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
