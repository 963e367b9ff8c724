package stroke

import (
	"image"
	"sync"
)

// PointerID identifies one pointer (mouse, finger or pen) for the duration of
// a drag.
type PointerID int64

// ChangeFunc receives the rendered signature after every change, or nil when
// the pad became empty.
type ChangeFunc func(img image.Image)

// Option configures a Pad.
type Option func(*Pad)

// WithStyle sets the pen used for new strokes.
func WithStyle(s Style) Option {
	return func(p *Pad) { p.style = s }
}

// WithOnChange registers the signature-changed callback.
func WithOnChange(fn ChangeFunc) Option {
	return func(p *Pad) { p.onChange = fn }
}

// WithSize sets the initial visual size and device pixel ratio.
func WithSize(width, height, ratio float32) Option {
	return func(p *Pad) {
		p.width, p.height, p.ratio = width, height, ratio
	}
}

// Pad turns pointer events into committed strokes and keeps its Surface in
// sync with them. A Pad exclusively owns its Surface.
//
// Only one pointer draws at a time: the pointer that started the current
// stroke keeps the pad until it is released or cancelled, even if it leaves
// the pad's bounds. Events from any other pointer are ignored meanwhile.
type Pad struct {
	mu sync.Mutex

	surface Surface
	style   Style

	width  float32
	height float32
	ratio  float32

	strokes []Stroke
	base    image.Image

	current *Stroke
	active  PointerID
	drawing bool

	disabled bool
	onChange ChangeFunc
}

// NewPad creates a pad drawing into surface and performs the initial setup.
func NewPad(surface Surface, opts ...Option) *Pad {
	p := &Pad{
		surface: surface,
		style:   DefaultStyle,
		width:   400,
		height:  160,
		ratio:   1,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.ratio <= 0 {
		p.ratio = 1
	}
	p.mu.Lock()
	p.setupLocked()
	p.mu.Unlock()
	return p
}

// PointerDown starts a new stroke at pt. It reports whether the pad took the
// pointer; a disabled pad or a pad already held by another pointer refuses.
func (p *Pad) PointerDown(id PointerID, pt Point) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disabled || p.drawing {
		return false
	}
	p.active = id
	p.drawing = true
	p.current = &Stroke{Points: []Point{pt}, Style: p.style}
	return true
}

// PointerMove appends pt to the current stroke and draws the newly settled
// curve piece right away.
func (p *Pad) PointerMove(id PointerID, pt Point) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.drawing || id != p.active {
		return
	}
	p.appendLocked(pt)
}

// PointerUp ends the current stroke. Strokes with at least two points are
// committed; shorter ones are taps and are dropped.
func (p *Pad) PointerUp(id PointerID, pt Point) {
	p.mu.Lock()
	if !p.drawing || id != p.active {
		p.mu.Unlock()
		return
	}

	cur := p.current
	if last := cur.Points[len(cur.Points)-1]; last.X != pt.X || last.Y != pt.Y {
		p.appendLocked(pt)
	}
	p.current = nil
	p.drawing = false

	if !cur.Valid() {
		p.mu.Unlock()
		return
	}
	p.surface.DrawSegment(tail(cur.Points), cur.Style)
	p.strokes = append(p.strokes, *cur)
	img := p.surface.Snapshot()
	fn := p.onChange
	p.mu.Unlock()

	if fn != nil {
		fn(img)
	}
}

// PointerCancel abandons the current stroke without committing it.
func (p *Pad) PointerCancel(id PointerID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.drawing || id != p.active {
		return
	}
	p.current = nil
	p.drawing = false
	p.redrawLocked()
}

func (p *Pad) appendLocked(pt Point) {
	p.current.Points = append(p.current.Points, pt)
	n := len(p.current.Points)
	p.surface.DrawSegment(settled(p.current.Points, n-1), p.current.Style)
}

// Undo removes the most recently committed stroke. It does nothing when no
// stroke has been committed.
func (p *Pad) Undo() {
	p.mu.Lock()
	if len(p.strokes) == 0 {
		p.mu.Unlock()
		return
	}
	p.strokes = p.strokes[:len(p.strokes)-1]
	p.redrawLocked()
	img := p.imageLocked()
	fn := p.onChange
	p.mu.Unlock()

	if fn != nil {
		fn(img)
	}
}

// Clear drops every stroke, the in-progress buffer and any loaded image.
func (p *Pad) Clear() {
	p.mu.Lock()
	p.strokes = nil
	p.base = nil
	p.current = nil
	p.drawing = false
	p.surface.Clear()
	fn := p.onChange
	p.mu.Unlock()

	if fn != nil {
		fn(nil)
	}
}

// IsEmpty reports whether the pad holds no committed strokes and no loaded image.
func (p *Pad) IsEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.emptyLocked()
}

func (p *Pad) emptyLocked() bool {
	return len(p.strokes) == 0 && p.base == nil
}

// ToImage renders the committed content to a raster snapshot.
func (p *Pad) ToImage() image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.surface.Snapshot()
}

func (p *Pad) imageLocked() image.Image {
	if p.emptyLocked() {
		return nil
	}
	return p.surface.Snapshot()
}

// LoadImage replaces the pad contents with a previously captured signature.
// Committed strokes are dropped; the image stays until Clear.
func (p *Pad) LoadImage(img image.Image) {
	p.mu.Lock()
	p.strokes = nil
	p.current = nil
	p.drawing = false
	p.base = img
	p.redrawLocked()
	out := p.imageLocked()
	fn := p.onChange
	p.mu.Unlock()

	if fn != nil {
		fn(out)
	}
}

// Resize re-runs the full setup for a new layout size or pixel density:
// the backing buffer is reallocated and all committed strokes are redrawn.
func (p *Pad) Resize(width, height, ratio float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ratio <= 0 {
		ratio = 1
	}
	p.width, p.height, p.ratio = width, height, ratio
	p.setupLocked()
}

func (p *Pad) setupLocked() {
	p.surface.Resize(p.width, p.height, p.ratio)
	p.redrawLocked()
}

// redrawLocked repaints from scratch: loaded image first, then every
// committed stroke in commit order.
func (p *Pad) redrawLocked() {
	p.surface.Clear()
	if p.base != nil {
		p.surface.DrawImage(p.base)
	}
	for _, s := range p.strokes {
		for _, seg := range Smooth(s.Points) {
			p.surface.DrawSegment(seg, s.Style)
		}
	}
}

// SetDisabled turns pointer handling off or on. Disabling discards a stroke
// in progress.
func (p *Pad) SetDisabled(disabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.disabled = disabled
	if disabled && p.drawing {
		p.current = nil
		p.drawing = false
		p.redrawLocked()
	}
}

// Disabled reports whether pointer handling is off.
func (p *Pad) Disabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disabled
}

// Drawing reports whether a pointer currently holds the pad.
func (p *Pad) Drawing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drawing
}

// SetStyle changes the pen for strokes started after the call.
func (p *Pad) SetStyle(s Style) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.style = s
}

// Strokes returns a copy of the committed strokes in commit order.
func (p *Pad) Strokes() []Stroke {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Stroke, len(p.strokes))
	for i, s := range p.strokes {
		out[i] = s.Clone()
	}
	return out
}

// Current returns a copy of the in-progress stroke, if any.
func (p *Pad) Current() (Stroke, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return Stroke{}, false
	}
	return p.current.Clone(), true
}

// Size returns the visual size and pixel ratio of the last setup.
func (p *Pad) Size() (width, height, ratio float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width, p.height, p.ratio
}
