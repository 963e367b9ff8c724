package ui

import (
	"context"
	"image"
	"net/http/httptest"
	"testing"

	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/unit"
	"gioui.org/widget/material"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasesign/cmd/leasesign-gui/internal/theme"
	"leasesign/internal/devserver"
	"leasesign/internal/gateway"
	"leasesign/internal/outline"
	"leasesign/internal/signing"
	"leasesign/internal/stroke"
)

func TestScrollPositionRoundTrip(t *testing.T) {
	blocks := []outline.Block{
		{OffsetTop: 0, Height: 40},
		{OffsetTop: 40, Height: 120},
		{OffsetTop: 160, Height: 60},
	}
	tests := []struct {
		top  float32
		want layout.Position
	}{
		{0, layout.Position{First: 0, Offset: 0}},
		{30, layout.Position{First: 0, Offset: 60}},
		{40, layout.Position{First: 1, Offset: 0}},
		{200, layout.Position{First: 2, Offset: 80}},
	}
	for _, tt := range tests {
		pos := positionFor(blocks, tt.top, 2)
		assert.Equal(t, tt.want.First, pos.First, "top %v", tt.top)
		assert.Equal(t, tt.want.Offset, pos.Offset, "top %v", tt.top)
		assert.InDelta(t, tt.top, scrollTopFor(blocks, pos, 2), 0.5)
	}
	assert.Equal(t, float32(0), scrollTopFor(nil, layout.Position{First: 3}, 1))
}

func newShell(t *testing.T) *signing.Shell {
	t.Helper()
	dev := devserver.New()
	dev.LoadDemo(true)
	srv := httptest.NewServer(dev.Handler())
	t.Cleanup(srv.Close)
	gw, err := gateway.New(srv.URL, gateway.WithSubmitRate(0, 0))
	require.NoError(t, err)
	return signing.New(devserver.DemoToken, gw)
}

func frame(m *Modal) {
	gtx := layout.Context{
		Ops:         new(op.Ops),
		Metric:      unit.Metric{PxPerDp: 1, PxPerSp: 1},
		Constraints: layout.Exact(image.Pt(1024, 768)),
	}
	m.Layout(gtx)
}

func TestModalLaysOutEveryStep(t *testing.T) {
	sh := newShell(t)
	th := theme.NewTheme(material.NewTheme())
	run := func(_ string, fn func()) { fn() }
	closed := false
	m := NewModal(context.Background(), th, sh, run, func() { closed = true })

	frame(m) // loading
	require.NoError(t, sh.Open(context.Background()))
	frame(m)

	require.NoError(t, sh.BeginSigning())
	frame(m)
	assert.Len(t, m.fieldLinks, len(sh.Fields()))

	require.True(t, sh.GoToFieldID("pet-ack"))
	frame(m)
	assert.Equal(t, "pet-ack", m.valueFor)

	sh.Close()
	frame(m)
	assert.False(t, closed)
}

func TestDocumentViewRecordsViewport(t *testing.T) {
	sh := newShell(t)
	require.NoError(t, sh.Open(context.Background()))
	th := theme.NewTheme(material.NewTheme())
	d := NewDocumentView(sh)

	gtx := layout.Context{
		Ops:         new(op.Ops),
		Metric:      unit.Metric{PxPerDp: 1, PxPerSp: 1},
		Constraints: layout.Exact(image.Pt(800, 300)),
	}
	d.Layout(gtx, th, sh.View())

	vp := sh.Viewport()
	assert.Equal(t, sh.Document().Height(), vp.ScrollHeight)
	assert.Greater(t, vp.ClientHeight, float32(0))
	assert.LessOrEqual(t, vp.ClientHeight, float32(300))

	sections := sh.Document().Sections()
	require.NotEmpty(t, sections)
	d.ScrollTo(sections[len(sections)-1].ID)
	assert.NotNil(t, d.scroller)
}

func TestSignaturePadFollowsLayoutWidth(t *testing.T) {
	pad := stroke.NewPad(stroke.NewRaster(), stroke.WithSize(400, 160, 1))
	for _, pt := range []stroke.Point{{X: 10, Y: 10}, {X: 60, Y: 40}, {X: 120, Y: 30}} {
		if !pad.Drawing() {
			require.True(t, pad.PointerDown(1, pt))
			continue
		}
		pad.PointerMove(1, pt)
	}
	pad.PointerUp(1, stroke.Point{X: 150, Y: 50})
	require.Len(t, pad.Strokes(), 1)

	th := theme.NewTheme(material.NewTheme())
	sp := NewSignaturePad(pad)
	layoutAt := func(width int, ppd float32) layout.Dimensions {
		gtx := layout.Context{
			Ops:         new(op.Ops),
			Metric:      unit.Metric{PxPerDp: ppd, PxPerSp: ppd},
			Constraints: layout.Constraints{Max: image.Pt(width, 600)},
		}
		return sp.Layout(gtx, th)
	}

	dims := layoutAt(1000, 1)
	assert.Equal(t, image.Pt(400, 160), dims.Size)
	w, h, _ := pad.Size()
	assert.Equal(t, float32(400), w)
	assert.Equal(t, float32(160), h)

	dims = layoutAt(300, 1)
	assert.Equal(t, 300, dims.Size.X)
	w, _, _ = pad.Size()
	assert.Equal(t, float32(300), w)
	assert.Equal(t, 300, pad.ToImage().Bounds().Dx())
	assert.Len(t, pad.Strokes(), 1, "strokes survive the resize")

	dims = layoutAt(1000, 2)
	assert.Equal(t, image.Pt(800, 320), dims.Size)
	w, _, ratio := pad.Size()
	assert.Equal(t, float32(400), w)
	assert.Equal(t, float32(2), ratio)
	assert.Equal(t, 800, pad.ToImage().Bounds().Dx())
	assert.Len(t, pad.Strokes(), 1)
}
