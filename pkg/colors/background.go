package colors

import (
	"os"
	"strconv"
	"strings"

	"github.com/muesli/termenv"
)

// ThemeMode selects how the terminal background is determined.
type ThemeMode string

const (
	ThemeModeAuto  ThemeMode = "auto"
	ThemeModeDark  ThemeMode = "dark"
	ThemeModeLight ThemeMode = "light"
)

// DarkBackground reports whether the terminal background is dark. Auto
// mode tries COLORFGBG, then a termenv query, and assumes dark.
func DarkBackground(mode ThemeMode) bool {
	switch mode {
	case ThemeModeDark:
		return true
	case ThemeModeLight:
		return false
	}
	if dark, ok := fromCOLORFGBG(os.Getenv("COLORFGBG")); ok {
		return dark
	}
	out := termenv.NewOutput(os.Stdout)
	if bg := out.BackgroundColor(); bg != nil {
		if _, none := bg.(termenv.NoColor); !none {
			return out.HasDarkBackground()
		}
	}
	return true
}

// fromCOLORFGBG parses "fg;bg" ANSI indices. 0-7 (and 16) are dark.
func fromCOLORFGBG(v string) (dark, ok bool) {
	parts := strings.Split(v, ";")
	if len(parts) < 2 {
		return false, false
	}
	bg, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return false, false
	}
	return bg < 8 || bg == 16, true
}
