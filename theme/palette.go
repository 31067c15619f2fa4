package theme

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type RGB [3]uint8

// Palette is an ordered list of colours; Lookup blends between them so an
// intensity in [0, 1] picks a point on the gradient.
type Palette struct {
	Name   string
	Colors []RGB
}

// Default is the built-in gradient used when no GPL file is configured:
// near-black violet through magenta and coral to warm yellow.
func Default() *Palette {
	return &Palette{
		Name: "ember",
		Colors: []RGB{
			{28, 16, 48},
			{62, 28, 96},
			{122, 36, 140},
			{186, 52, 132},
			{232, 92, 104},
			{250, 150, 72},
			{255, 214, 90},
		},
	}
}

// LoadGPL reads a GIMP palette file.
func LoadGPL(path string) (*Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p := &Palette{}
	scanner := bufio.NewScanner(f)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())

		if name, ok := strings.CutPrefix(line, "Name:"); ok {
			p.Name = strings.TrimSpace(name)
			continue
		}

		// Skip headers and comments
		if line == "" || line[0] == '#' || strings.HasPrefix(line, "GIMP") || strings.HasPrefix(line, "Columns") {
			continue
		}

		c, err := parseRGB(strings.Fields(line))
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		p.Colors = append(p.Colors, c)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(p.Colors) == 0 {
		return nil, fmt.Errorf("no colors found in palette %s", path)
	}

	return p, nil
}

// parseRGB reads the first three fields; anything after is the colour name.
func parseRGB(fields []string) (RGB, error) {
	if len(fields) < 3 {
		return RGB{}, fmt.Errorf("want R G B, got %q", strings.Join(fields, " "))
	}
	var c RGB
	for i := range 3 {
		v, err := strconv.Atoi(fields[i])
		if err != nil || v < 0 || v > 255 {
			return RGB{}, fmt.Errorf("bad channel %q", fields[i])
		}
		c[i] = uint8(v)
	}
	return c, nil
}

// Lookup returns interpolated color for normalized value 0-1
func (p *Palette) Lookup(norm float64) RGB {
	if norm <= 0 || len(p.Colors) == 1 {
		return p.Colors[0]
	}
	if norm >= 1 {
		return p.Colors[len(p.Colors)-1]
	}

	pos := norm * float64(len(p.Colors)-1)
	i := int(pos)
	frac := pos - float64(i)

	c0 := p.Colors[i]
	c1 := p.Colors[i+1]

	return RGB{
		lerp(c0[0], c1[0], frac),
		lerp(c0[1], c1[1], frac),
		lerp(c0[2], c1[2], frac),
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a)*(1-t) + float64(b)*t + 0.5)
}
