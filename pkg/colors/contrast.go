// Package colors holds the hex color helpers behind group badges and row
// markers in the CLI and TUI.
package colors

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// parseHex reads "#rrggbb" (the '#' is optional).
func parseHex(hexColor string) (r, g, b int64, ok bool) {
	hex := strings.TrimPrefix(strings.TrimSpace(hexColor), "#")
	if len(hex) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int64(v >> 16 & 0xff), int64(v >> 8 & 0xff), int64(v & 0xff), true
}

// IsValidHex reports whether s is a "#rrggbb" color.
func IsValidHex(s string) bool {
	_, _, _, ok := parseHex(s)
	return ok && strings.HasPrefix(strings.TrimSpace(s), "#")
}

func formatHex(r, g, b int64) string {
	return fmt.Sprintf("#%02x%02x%02x", clamp(r), clamp(g), clamp(b))
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// Luminance is the WCAG relative luminance, 0 for black and invalid input,
// 1 for white.
func Luminance(hexColor string) float64 {
	r, g, b, ok := parseHex(hexColor)
	if !ok {
		return 0
	}
	return 0.2126*linear(r) + 0.7152*linear(g) + 0.0722*linear(b)
}

func linear(c int64) float64 {
	v := float64(c) / 255.0
	if v <= 0.03928 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

// ContrastRatio is the WCAG contrast ratio, between 1 and 21.
func ContrastRatio(fg, bg string) float64 {
	l1, l2 := Luminance(fg), Luminance(bg)
	if l1 < l2 {
		l1, l2 = l2, l1
	}
	return (l1 + 0.05) / (l2 + 0.05)
}

// IsLight reports whether the color is closer to white than black.
func IsLight(hexColor string) bool {
	return Luminance(hexColor) > 0.5
}

// Lighten moves a color towards white by amount (0 to 1).
func Lighten(hexColor string, amount float64) string {
	r, g, b, ok := parseHex(hexColor)
	if !ok {
		return hexColor
	}
	return formatHex(
		r+int64(float64(255-r)*amount),
		g+int64(float64(255-g)*amount),
		b+int64(float64(255-b)*amount),
	)
}

// Darken moves a color towards black by amount (0 to 1).
func Darken(hexColor string, amount float64) string {
	r, g, b, ok := parseHex(hexColor)
	if !ok {
		return hexColor
	}
	m := 1.0 - amount
	return formatHex(int64(float64(r)*m), int64(float64(g)*m), int64(float64(b)*m))
}

// EnsureContrast nudges fg away from bg until the pair reaches minRatio,
// falling back to black or white.
func EnsureContrast(fg, bg string, minRatio float64) string {
	if ContrastRatio(fg, bg) >= minRatio {
		return fg
	}
	lighter := Luminance(fg) > Luminance(bg)
	for step := 0.1; step <= 1.0; step += 0.1 {
		adjusted := Darken(fg, step)
		if lighter {
			adjusted = Lighten(fg, step)
		}
		if ContrastRatio(adjusted, bg) >= minRatio {
			return adjusted
		}
	}
	if Luminance(bg) > 0.5 {
		return "#000000"
	}
	return "#ffffff"
}
