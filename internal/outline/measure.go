package outline

import (
	"math"
	"unicode/utf8"
)

// Measurer estimates the rendered height of a block.
type Measurer interface {
	Measure(b Block) float32
}

// MeasureFunc adapts a function to Measurer.
type MeasureFunc func(b Block) float32

func (f MeasureFunc) Measure(b Block) float32 { return f(b) }

// TextMeasurer lays text out on a fixed-width column with a monospace-ish
// character advance. It is close enough for scroll sync when the real layout
// engine is not available.
type TextMeasurer struct {
	Width      float32
	CharWidth  float32
	LineHeight float32
	Spacing    float32
	// HeadingScale multiplies font size for h1..h4.
	HeadingScale [MaxLevel]float32
}

// DefaultMeasurer returns a TextMeasurer for a 720-unit column of 16px text.
func DefaultMeasurer() *TextMeasurer {
	return &TextMeasurer{
		Width:        720,
		CharWidth:    8,
		LineHeight:   24,
		Spacing:      12,
		HeadingScale: [MaxLevel]float32{2, 1.5, 1.25, 1.1},
	}
}

func (m *TextMeasurer) Measure(b Block) float32 {
	scale := float32(1)
	if b.Kind == BlockHeading && b.Level >= 1 && b.Level <= MaxLevel {
		scale = m.HeadingScale[b.Level-1]
	}
	perLine := m.Width / (m.CharWidth * scale)
	if perLine < 1 {
		perLine = 1
	}
	n := utf8.RuneCountInString(b.Text)
	lines := float32(math.Ceil(float64(float32(n) / perLine)))
	if lines < 1 {
		lines = 1
	}
	return lines*m.LineHeight*scale + m.Spacing
}
