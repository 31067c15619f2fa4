package widgets

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-pulse/theme"
)

// RenderMeter renders an intensity as a horizontal bar of width cells,
// coloured by the level itself.
func RenderMeter(th *theme.Theme, level float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := cells(level, width)
	full := lipgloss.NewStyle().Foreground(th.Color(level)).
		Render(strings.Repeat(string(th.Symbols.MeterFull), filled))
	empty := lipgloss.NewStyle().Foreground(th.Muted()).
		Render(strings.Repeat(string(th.Symbols.MeterEmpty), width-filled))
	return full + empty
}

// cells is how many of width cells a level fills, rounded.
func cells(level float64, width int) int {
	if math.IsNaN(level) || level <= 0 {
		return 0
	}
	if level >= 1 {
		return width
	}
	return int(level*float64(width) + 0.5)
}

// RenderSparkline draws one glyph per sample, samples clamped to [0, 1].
func RenderSparkline(th *theme.Theme, samples []float64) string {
	var out strings.Builder
	for _, v := range samples {
		glyph := sparkGlyph(th.Symbols.Spark, v)
		out.WriteString(lipgloss.NewStyle().Foreground(th.Color(v)).Render(string(glyph)))
	}
	return out.String()
}

func sparkGlyph(glyphs []rune, v float64) rune {
	if math.IsNaN(v) || v <= 0 {
		return glyphs[0]
	}
	if v >= 1 {
		return glyphs[len(glyphs)-1]
	}
	return glyphs[int(v*float64(len(glyphs)-1)+0.5)]
}

// RenderLegendItem renders a single legend item: "◆ name - description"
func RenderLegendItem(th *theme.Theme, symbol rune, name, desc string) string {
	mark := lipgloss.NewStyle().Foreground(th.Accent()).Render(string(symbol))
	return fmt.Sprintf("  %s %s - %s", mark, name, desc)
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
