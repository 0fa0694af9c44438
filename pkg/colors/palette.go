package colors

var groupPalette = []string{
	"#3498db", // Blue
	"#e67e22", // Carrot
	"#9b59b6", // Purple
	"#1abc9c", // Turquoise
	"#e74c3c", // Red
	"#f1c40f", // Sunflower
	"#16a085", // Green sea
	"#8e44ad", // Wisteria
	"#d35400", // Pumpkin
	"#2980b9", // Belize hole
}

// GroupColor is the palette color for the group at index, used when a
// group has no color of its own.
func GroupColor(index int) string {
	if index < 0 {
		index = -index
	}
	return groupPalette[index%len(groupPalette)]
}

// TextColor picks white or black text for a badge background. White is
// preferred whenever it reaches the 3:1 large-text ratio.
func TextColor(bg string) string {
	if ContrastRatio("#ffffff", bg) >= 3.0 {
		return "#ffffff"
	}
	if ContrastRatio("#000000", bg) >= 3.0 {
		return "#000000"
	}
	if IsLight(bg) {
		return "#000000"
	}
	return "#ffffff"
}

// Muted returns the color for a stopped row in a group of the given color.
func Muted(hexColor string, darkBackground bool) string {
	if darkBackground {
		return Darken(hexColor, 0.45)
	}
	return Lighten(hexColor, 0.55)
}
