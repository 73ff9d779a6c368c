package util

import (
	"fmt"
	"strings"
)

// parseHexColor parses a hex color string (#RRGGBB) into RGB components.
func parseHexColor(hex string) (r, g, b uint8, err error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid hex color length: %s", hex)
	}

	var ri, gi, bi int
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &ri, &gi, &bi); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid hex color: %s", hex)
	}

	return uint8(ri), uint8(gi), uint8(bi), nil //nolint:gosec // Values are 0-255 by hex parsing
}

// DarkenColor darkens a hex color by a percentage (0-100).
// Colors that do not parse are returned unchanged.
func DarkenColor(hex string, percent int) string {
	r, g, b, err := parseHexColor(hex)
	if err != nil {
		return hex
	}

	factor := min(max(1.0-float64(percent)/100.0, 0.0), 1.0)
	return fmt.Sprintf("#%02X%02X%02X",
		uint8(float64(r)*factor),
		uint8(float64(g)*factor),
		uint8(float64(b)*factor),
	)
}

// BrandCSS generates CSS custom properties for the page accent colors,
// including the waveform colors.
func BrandCSS(colorLight, colorDark string) string {
	return fmt.Sprintf(
		":root{--brand:%s;--brand-hover:%s;--wave:%s;--wave-progress:%s}"+
			"@media(prefers-color-scheme:dark){:root{--brand:%s;--brand-hover:%s;--wave:%s;--wave-progress:%s}}",
		colorLight, DarkenColor(colorLight, 10), colorLight, DarkenColor(colorLight, 40),
		colorDark, DarkenColor(colorDark, 10), colorDark, DarkenColor(colorDark, 40),
	)
}
