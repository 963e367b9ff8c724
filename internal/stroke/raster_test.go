package stroke

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alphaAt(img image.Image, x, y int) uint32 {
	_, _, _, a := img.At(x, y).RGBA()
	return a
}

func TestRasterResizeTracksPixelRatio(t *testing.T) {
	r := NewRaster()
	r.Resize(300, 100, 2)
	assert.Equal(t, image.Rect(0, 0, 600, 200), r.Bounds())

	r.Resize(300, 100, 1.5)
	assert.Equal(t, image.Rect(0, 0, 450, 150), r.Bounds())
}

func TestRasterDrawSegment(t *testing.T) {
	r := NewRaster()
	r.Resize(100, 50, 2)

	r.DrawSegment(Line(Point{X: 10, Y: 25}, Point{X: 90, Y: 25}), Style{
		Color: color.NRGBA{A: 0xFF},
		Width: 4,
	})
	img := r.Snapshot()

	// Visual (50, 25) lands on backing pixel (100, 50).
	assert.Equal(t, uint32(0xFFFF), alphaAt(img, 100, 50))
	assert.Zero(t, alphaAt(img, 100, 10), "pixels away from the stroke stay clear")
	assert.Zero(t, alphaAt(img, 190, 50), "stroke ends near visual x=90")
}

func TestRasterCurvedSegmentStaysNearCurve(t *testing.T) {
	r := NewRaster()
	r.Resize(100, 100, 1)

	seg := Segment{From: Point{X: 10, Y: 90}, Ctrl: Point{X: 50, Y: 10}, To: Point{X: 90, Y: 90}}
	r.DrawSegment(seg, Style{Color: color.NRGBA{A: 0xFF}, Width: 3})
	img := r.Snapshot()

	mid := seg.At(0.5)
	assert.NotZero(t, alphaAt(img, int(mid.X), int(mid.Y)))
	assert.Zero(t, alphaAt(img, 50, 15), "the control point itself is not on the curve")
}

func TestRasterClearUsesBackground(t *testing.T) {
	r := NewRaster()
	r.SetBackground(color.White)
	r.Resize(10, 10, 1)
	assert.Equal(t, uint32(0xFFFF), alphaAt(r.Snapshot(), 5, 5))

	r.SetBackground(color.Transparent)
	r.Clear()
	assert.Zero(t, alphaAt(r.Snapshot(), 5, 5))
}

func TestRasterSnapshotIsCopy(t *testing.T) {
	r := NewRaster()
	r.Resize(20, 20, 1)
	before := r.Snapshot()

	r.DrawSegment(Line(Point{X: 0, Y: 10}, Point{X: 20, Y: 10}), DefaultStyle)
	assert.Zero(t, alphaAt(before, 10, 10))
	assert.NotZero(t, alphaAt(r.Snapshot(), 10, 10))
}

func TestPadWithRasterRoundTripsThroughDataURL(t *testing.T) {
	raster := NewRaster()
	pad := NewPad(raster, WithSize(200, 80, 1))

	empty, err := pad.DataURL()
	require.NoError(t, err)
	assert.Empty(t, empty)

	drag(pad, 1, line(20, 40, 180, 12)...)
	url, err := pad.DataURL()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	img, err := DecodeDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 80), img.Bounds())
	assert.NotZero(t, alphaAt(img, 100, 40))

	other := NewPad(NewRaster(), WithSize(200, 80, 2))
	require.NoError(t, other.LoadDataURL(url))
	assert.False(t, other.IsEmpty())
	assert.NotZero(t, alphaAt(other.ToImage(), 200, 80), "restored image is scaled to the backing buffer")
}

func TestDecodeDataURLRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "hello", "data:text/plain;base64,aGk=", "data:image/png;base64,@@@"} {
		_, err := DecodeDataURL(in)
		assert.ErrorIs(t, err, ErrInvalidDataURL, in)
	}
}
