package theme

import (
	"image/color"
	"runtime"

	"gioui.org/unit"
	"gioui.org/widget/material"
)

// Palette defines the system colors.
type Palette struct {
	Backdrop   color.NRGBA
	Background color.NRGBA
	Surface    color.NRGBA
	Paper      color.NRGBA
	Primary    color.NRGBA
	OnPrimary  color.NRGBA
	Text       color.NRGBA
	TextMuted  color.NRGBA
	Border     color.NRGBA
	Highlight  color.NRGBA
	Success    color.NRGBA
	Error      color.NRGBA
	Warning    color.NRGBA
}

// Config defines the system metrics.
type Config struct {
	CornerRadius unit.Dp
	Spacing      unit.Dp
	Padding      unit.Dp
	SidebarWidth unit.Dp
	FontTitle    unit.Sp
	FontBody     unit.Sp
	FontCaption  unit.Sp
}

// Theme wraps the material theme with system-specific styling.
type Theme struct {
	*material.Theme
	Palette Palette
	Config  Config
}

// NewTheme creates a new theme based on the current OS.
func NewTheme(mtheme *material.Theme) *Theme {
	t := &Theme{Theme: mtheme}
	t.Palette = lightPalette()

	switch runtime.GOOS {
	case "darwin":
		setupMacOSMetrics(t)
	default:
		setupDefaultMetrics(t)
	}

	t.Theme.Palette.Fg = t.Palette.Text
	t.Theme.Palette.Bg = t.Palette.Surface
	t.Theme.Palette.ContrastBg = t.Palette.Primary
	t.Theme.Palette.ContrastFg = t.Palette.OnPrimary
	t.Theme.TextSize = t.Config.FontBody
	return t
}

// Documents are read on paper, so the modal stays light on every platform.
func lightPalette() Palette {
	return Palette{
		Backdrop:   color.NRGBA{R: 0x10, G: 0x14, B: 0x1C, A: 0xB0},
		Background: color.NRGBA{R: 0xF3, G: 0xF4, B: 0xF6, A: 0xFF},
		Surface:    color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
		Paper:      color.NRGBA{R: 0xFD, G: 0xFD, B: 0xFB, A: 0xFF},
		Primary:    color.NRGBA{R: 0x1F, G: 0x5F, B: 0xBF, A: 0xFF},
		OnPrimary:  color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
		Text:       color.NRGBA{R: 0x1A, G: 0x1A, B: 0x2E, A: 0xFF},
		TextMuted:  color.NRGBA{R: 0x6B, G: 0x72, B: 0x80, A: 0xFF},
		Border:     color.NRGBA{R: 0xD1, G: 0xD5, B: 0xDB, A: 0xFF},
		Highlight:  color.NRGBA{R: 0xE8, G: 0xF0, B: 0xFE, A: 0xFF},
		Success:    color.NRGBA{R: 0x16, G: 0xA3, B: 0x4A, A: 0xFF},
		Error:      color.NRGBA{R: 0xDC, G: 0x26, B: 0x26, A: 0xFF},
		Warning:    color.NRGBA{R: 0xD9, G: 0x77, B: 0x06, A: 0xFF},
	}
}

func setupDefaultMetrics(t *Theme) {
	t.Config = Config{
		CornerRadius: unit.Dp(4),
		Spacing:      unit.Dp(8),
		Padding:      unit.Dp(16),
		SidebarWidth: unit.Dp(220),
		FontTitle:    unit.Sp(20),
		FontBody:     unit.Sp(14),
		FontCaption:  unit.Sp(12),
	}
}

func setupMacOSMetrics(t *Theme) {
	t.Config = Config{
		CornerRadius: unit.Dp(10),
		Spacing:      unit.Dp(10),
		Padding:      unit.Dp(20),
		SidebarWidth: unit.Dp(230),
		FontTitle:    unit.Sp(22),
		FontBody:     unit.Sp(13), // macOS system font runs small
		FontCaption:  unit.Sp(11),
	}
}
