package display

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Pattern is how the indicator presents its color over time.
type Pattern int

const (
	PatternSolid Pattern = iota
	PatternSlowBlink
	PatternFastBlink
	PatternOff
)

var patternNames = []string{
	PatternSolid:     "solid",
	PatternSlowBlink: "slow_blink",
	PatternFastBlink: "fast_blink",
	PatternOff:       "off",
}

func (p Pattern) String() string {
	if p >= 0 && int(p) < len(patternNames) {
		return patternNames[p]
	}
	return fmt.Sprintf("pattern(%d)", int(p))
}

// ParsePattern converts a pattern name into a Pattern.
func ParsePattern(name string) (Pattern, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	switch n {
	case "blink":
		return PatternSlowBlink, nil
	case "fast":
		return PatternFastBlink, nil
	}
	for i, candidate := range patternNames {
		if candidate == n {
			return Pattern(i), nil
		}
	}
	return 0, fmt.Errorf("unknown pattern %q", name)
}

// Blinking reports whether the pattern alternates on and off.
func (p Pattern) Blinking() bool {
	return p == PatternSlowBlink || p == PatternFastBlink
}

// Color is an 8-bit RGB triple.
type Color struct {
	R uint8
	G uint8
	B uint8
}

// Black is the all-off color.
var Black = Color{}

// ParseColor parses "#rrggbb" or "rrggbb".
func ParseColor(s string) (Color, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(raw) != 6 {
		return Color{}, fmt.Errorf("color %q must be #rrggbb", s)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return Color{}, fmt.Errorf("color %q must be #rrggbb: %w", s, err)
	}
	return Color{R: b[0], G: b[1], B: b[2]}, nil
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// IsBlack reports whether every channel is zero.
func (c Color) IsBlack() bool {
	return c == Black
}

// Scale multiplies every channel by f, clamped to [0, 1].
func (c Color) Scale(f float64) Color {
	if f >= 1 {
		return c
	}
	if f <= 0 {
		return Black
	}
	scale := func(v uint8) uint8 { return uint8(float64(v)*f + 0.5) }
	return Color{R: scale(c.R), G: scale(c.G), B: scale(c.B)}
}

// Command is one instruction for the indicator.
type Command struct {
	Color   Color
	Pattern Pattern
}

// Off turns the indicator dark.
var Off = Command{Color: Black, Pattern: PatternOff}

func (c Command) String() string {
	if c.Pattern == PatternOff {
		return "off"
	}
	return c.Color.String() + " " + c.Pattern.String()
}
