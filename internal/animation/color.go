package animation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Color is a 24-bit RGB value. It encodes as a three element JSON array.
type Color struct {
	R, G, B uint8
}

var (
	Black = Color{}
	White = Color{R: 255, G: 255, B: 255}
)

// RGB is shorthand for Color{r, g, b}.
func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b}
}

// ParseHex parses "#rrggbb" or "rrggbb".
func ParseHex(s string) (Color, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("color %q: want 6 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("color %q: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// Hex returns the "#rrggbb" form.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Scale multiplies every channel by f, clamped to [0, 1].
func (c Color) Scale(f float64) Color {
	if f >= 1 {
		return c
	}
	if f <= 0 || math.IsNaN(f) {
		return Black
	}
	return Color{
		R: uint8(math.Round(float64(c.R) * f)),
		G: uint8(math.Round(float64(c.G) * f)),
		B: uint8(math.Round(float64(c.B) * f)),
	}
}

func (c Color) MarshalJSON() ([]byte, error) {
	b := make([]byte, 0, 13)
	b = append(b, '[')
	b = strconv.AppendUint(b, uint64(c.R), 10)
	b = append(b, ',')
	b = strconv.AppendUint(b, uint64(c.G), 10)
	b = append(b, ',')
	b = strconv.AppendUint(b, uint64(c.B), 10)
	return append(b, ']'), nil
}

// UnmarshalJSON accepts [r,g,b] and "#rrggbb".
func (c *Color) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseHex(s)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}

	var rgb []int
	if err := json.Unmarshal(data, &rgb); err != nil {
		return fmt.Errorf("color: %w", err)
	}
	if len(rgb) != 3 {
		return fmt.Errorf("color: want 3 components, got %d", len(rgb))
	}
	for _, v := range rgb {
		if v < 0 || v > 255 {
			return fmt.Errorf("color: component %d out of range [0,255]", v)
		}
	}
	*c = Color{R: uint8(rgb[0]), G: uint8(rgb[1]), B: uint8(rgb[2])}
	return nil
}
