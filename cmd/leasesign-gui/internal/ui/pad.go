package ui

import (
	"image"
	"sync/atomic"

	"gioui.org/io/event"
	"gioui.org/io/pointer"
	"gioui.org/layout"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"

	"leasesign/cmd/leasesign-gui/internal/theme"
	"leasesign/internal/stroke"
)

// SignaturePad forwards pointer input to a stroke.Pad and paints its
// bitmap. The texture is re-uploaded only after the pad changes.
type SignaturePad struct {
	pad   *stroke.Pad
	dirty atomic.Bool
	img   paint.ImageOp
	has   bool

	// width and height are the preferred size in dp. The pad is narrowed
	// to fit smaller layouts.
	width, height float32
}

// NewSignaturePad wraps pad. The pad's current size becomes the preferred
// size.
func NewSignaturePad(pad *stroke.Pad) *SignaturePad {
	w, h, _ := pad.Size()
	p := &SignaturePad{pad: pad, width: w, height: h}
	p.dirty.Store(true)
	return p
}

// Invalidate marks the bitmap stale. Safe from any goroutine.
func (p *SignaturePad) Invalidate() { p.dirty.Store(true) }

// Layout handles input and draws the pad at its preferred size, narrowed to
// the available width. Any change of visual size or pixel density re-sets
// the pad, which redraws its committed strokes.
func (p *SignaturePad) Layout(gtx layout.Context, th *theme.Theme) layout.Dimensions {
	w, h := p.fit(gtx)
	size := image.Pt(gtx.Dp(unit.Dp(w)), gtx.Dp(unit.Dp(h)))
	if size.X > gtx.Constraints.Max.X {
		size.X = gtx.Constraints.Max.X
	}

	p.update(gtx, w/float32(max(size.X, 1)), h/float32(max(size.Y, 1)))

	bg := th.Palette.Paper
	if p.pad.Disabled() {
		bg = th.Palette.Background
	}
	radius := gtx.Dp(th.Config.CornerRadius)
	rr := clip.UniformRRect(image.Rectangle{Max: size}, radius)
	paint.FillShape(gtx.Ops, bg, rr.Op(gtx.Ops))

	// Signature line.
	lineY := size.Y * 3 / 4
	line := clip.Rect{Min: image.Pt(gtx.Dp(16), lineY), Max: image.Pt(size.X-gtx.Dp(16), lineY+gtx.Dp(1))}
	paint.FillShape(gtx.Ops, th.Palette.Border, line.Op())

	if p.dirty.Swap(false) {
		if img := p.pad.ToImage(); img != nil {
			p.img = paint.NewImageOp(img)
			p.has = true
		} else {
			p.has = false
		}
	}
	if p.has {
		igtx := gtx
		igtx.Constraints = layout.Exact(size)
		widget.Image{Src: p.img, Fit: widget.Fill}.Layout(igtx)
	}

	paint.FillShape(gtx.Ops, th.Palette.Border,
		clip.Stroke{Path: rr.Path(gtx.Ops), Width: float32(gtx.Dp(1))}.Op())

	area := clip.Rect{Max: size}.Push(gtx.Ops)
	event.Op(gtx.Ops, p)
	if !p.pad.Disabled() {
		pointer.CursorCrosshair.Add(gtx.Ops)
	}
	area.Pop()

	return layout.Dimensions{Size: size}
}

// fit resizes the pad to the width the layout allows and returns its visual
// size in dp.
func (p *SignaturePad) fit(gtx layout.Context) (w, h float32) {
	ppd := gtx.Metric.PxPerDp
	if ppd <= 0 {
		ppd = 1
	}
	w, h = p.width, p.height
	if avail := float32(gtx.Constraints.Max.X) / ppd; avail > 0 && w > avail {
		w = avail
	}
	if cw, ch, ratio := p.pad.Size(); cw != w || ch != h || ratio != ppd {
		p.pad.Resize(w, h, ppd)
		p.dirty.Store(true)
	}
	return w, h
}

// update drains pointer events. sx and sy convert pixels to pad units.
func (p *SignaturePad) update(gtx layout.Context, sx, sy float32) {
	for {
		ev, ok := gtx.Event(pointer.Filter{
			Target: p,
			Kinds:  pointer.Press | pointer.Drag | pointer.Release | pointer.Cancel,
		})
		if !ok {
			return
		}
		e, ok := ev.(pointer.Event)
		if !ok {
			continue
		}
		id := stroke.PointerID(e.PointerID)
		pt := stroke.Point{X: e.Position.X * sx, Y: e.Position.Y * sy}
		switch e.Kind {
		case pointer.Press:
			if e.Source == pointer.Mouse && !e.Buttons.Contain(pointer.ButtonPrimary) {
				continue
			}
			if p.pad.PointerDown(id, pt) {
				gtx.Execute(pointer.GrabCmd{Tag: p, ID: e.PointerID})
			}
		case pointer.Drag:
			p.pad.PointerMove(id, pt)
		case pointer.Release:
			p.pad.PointerUp(id, pt)
		case pointer.Cancel:
			p.pad.PointerCancel(id)
		}
		p.dirty.Store(true)
	}
}
