package ui

import (
	"image"
	"sort"

	"gioui.org/font"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"

	"leasesign/cmd/leasesign-gui/internal/theme"
	"leasesign/internal/outline"
	"leasesign/internal/signing"
	"leasesign/internal/wizard"
)

// DocumentView shows the lease as a scrolling list of blocks next to its
// outline. Block offsets are in dp, the unit the shell measures in.
type DocumentView struct {
	shell    *signing.Shell
	list     widget.List
	toc      widget.List
	links    map[string]*widget.Clickable
	scroller *outline.Scroller
	last     outline.Viewport
}

// NewDocumentView returns a view bound to shell.
func NewDocumentView(sh *signing.Shell) *DocumentView {
	return &DocumentView{
		shell: sh,
		list:  widget.List{List: layout.List{Axis: layout.Vertical}},
		toc:   widget.List{List: layout.List{Axis: layout.Vertical}},
		links: map[string]*widget.Clickable{},
	}
}

// ScrollTo starts a smooth scroll to the section with id.
func (d *DocumentView) ScrollTo(id string) {
	if s, ok := d.shell.ScrollToSection(id); ok {
		d.scroller = s
	}
}

// ScrollToField scrolls to the section the current field belongs to.
func (d *DocumentView) ScrollToField() {
	if s, ok := d.shell.ScrollToCurrentField(); ok {
		d.scroller = s
	}
}

func (d *DocumentView) link(id string) *widget.Clickable {
	c, ok := d.links[id]
	if !ok {
		c = new(widget.Clickable)
		d.links[id] = c
	}
	return c
}

// Layout draws the outline sidebar and the document.
func (d *DocumentView) Layout(gtx layout.Context, th *theme.Theme, v signing.View) layout.Dimensions {
	doc := d.shell.Document()
	if doc == nil {
		return layout.Dimensions{Size: gtx.Constraints.Max}
	}
	for _, sec := range v.Sections {
		if d.link(sec.ID).Clicked(gtx) {
			d.ScrollTo(sec.ID)
		}
	}

	return layout.Flex{Axis: layout.Horizontal}.Layout(gtx,
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			gtx.Constraints.Min.X = gtx.Dp(th.Config.SidebarWidth)
			gtx.Constraints.Max.X = gtx.Constraints.Min.X
			return d.layoutOutline(gtx, th, v)
		}),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			size := image.Pt(gtx.Dp(1), gtx.Constraints.Max.Y)
			paint.FillShape(gtx.Ops, th.Palette.Border, clip.Rect{Max: size}.Op())
			return layout.Dimensions{Size: size}
		}),
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			return d.layoutBlocks(gtx, th, doc)
		}),
	)
}

func (d *DocumentView) layoutOutline(gtx layout.Context, th *theme.Theme, v signing.View) layout.Dimensions {
	return layout.UniformInset(th.Config.Spacing).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return material.List(th.Theme, &d.toc).Layout(gtx, len(v.Sections), func(gtx layout.Context, i int) layout.Dimensions {
			sec := v.Sections[i]
			indent := unit.Dp(float32(max(sec.Level-1, 0)) * 12)
			return material.Clickable(gtx, d.link(sec.ID), func(gtx layout.Context) layout.Dimensions {
				return layout.Inset{Top: 4, Bottom: 4, Left: indent + 6, Right: 6}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
					l := material.Body2(th.Theme, sec.Title)
					l.Color = th.Palette.TextMuted
					if sec.ID == v.ActiveSection {
						l.Color = th.Palette.Primary
						l.Font.Weight = font.Bold
					} else if sec.ID == v.FieldSection && v.Step == wizard.StepSign {
						l.Color = th.Palette.Warning
					}
					return l.Layout(gtx)
				})
			})
		})
	})
}

func (d *DocumentView) layoutBlocks(gtx layout.Context, th *theme.Theme, doc *outline.Document) layout.Dimensions {
	blocks := doc.Blocks()
	ppd := gtx.Metric.PxPerDp

	if d.scroller != nil {
		if d.scroller.Tick(d.shell.Now()) {
			d.scroller = nil
		}
		d.list.Position = positionFor(blocks, d.shell.Viewport().ScrollTop, ppd)
		gtx.Execute(op.InvalidateCmd{})
	}

	paint.FillShape(gtx.Ops, th.Palette.Paper, clip.Rect{Max: gtx.Constraints.Max}.Op())
	dims := material.List(th.Theme, &d.list).Layout(gtx, len(blocks), func(gtx layout.Context, i int) layout.Dimensions {
		return layout.Inset{Left: 32, Right: 32, Top: 6, Bottom: 6}.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
			return blockLabel(th, blocks[i]).Layout(gtx)
		})
	})

	if d.scroller == nil {
		vp := outline.Viewport{
			ScrollTop:    scrollTopFor(blocks, d.list.Position, ppd),
			ClientHeight: float32(dims.Size.Y) / ppd,
			ScrollHeight: doc.Height(),
		}
		if vp != d.last {
			d.last = vp
			d.shell.SetViewport(vp)
		}
	}
	return dims
}

func blockLabel(th *theme.Theme, b outline.Block) material.LabelStyle {
	switch b.Kind {
	case outline.BlockHeading:
		var l material.LabelStyle
		switch b.Level {
		case 1:
			l = material.H5(th.Theme, b.Text)
		case 2:
			l = material.H6(th.Theme, b.Text)
		default:
			l = material.Subtitle1(th.Theme, b.Text)
		}
		l.Color = th.Palette.Text
		return l
	case outline.BlockListItem:
		l := material.Body1(th.Theme, "•  "+b.Text)
		l.Color = th.Palette.Text
		return l
	}
	l := material.Body1(th.Theme, b.Text)
	l.Color = th.Palette.Text
	return l
}

// scrollTopFor converts a list position to a document offset in dp.
func scrollTopFor(blocks []outline.Block, pos layout.Position, ppd float32) float32 {
	if len(blocks) == 0 || pos.First >= len(blocks) {
		return 0
	}
	return blocks[pos.First].OffsetTop + float32(pos.Offset)/ppd
}

// positionFor is the inverse of scrollTopFor.
func positionFor(blocks []outline.Block, top, ppd float32) layout.Position {
	i := sort.Search(len(blocks), func(i int) bool { return blocks[i].OffsetTop > top }) - 1
	if i < 0 {
		return layout.Position{}
	}
	return layout.Position{First: i, Offset: int((top - blocks[i].OffsetTop) * ppd)}
}
