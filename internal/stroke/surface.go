package stroke

import (
	"image"
	"image/color"
	"sync"
)

// Surface is the drawing target a Pad renders into.
//
// Width and height passed to Resize are visual units; ratio is the number of
// backing pixels per visual unit. Segments are always given in visual units.
type Surface interface {
	// Resize reallocates the backing buffer. Existing content is discarded.
	Resize(width, height, ratio float32)
	// Clear erases all content.
	Clear()
	// DrawSegment strokes one curve piece.
	DrawSegment(seg Segment, style Style)
	// DrawImage paints img stretched over the whole surface.
	DrawImage(img image.Image)
	// Snapshot returns a copy of the current backing buffer.
	Snapshot() image.Image
}

// OpKind identifies a recorded surface call.
type OpKind int

const (
	OpResize OpKind = iota
	OpClear
	OpSegment
	OpImage
)

// Op is one call captured by a Recorder.
type Op struct {
	Kind    OpKind
	Segment Segment
	Style   Style
}

// Recorder is a Surface that records every call instead of drawing.
// Its snapshot is a 1x1 image whose pixel encodes the number of segments
// drawn since the last Clear.
type Recorder struct {
	mu     sync.Mutex
	ops    []Op
	width  float32
	height float32
	ratio  float32
	live   int
	image  bool
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Resize(width, height, ratio float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.width, r.height, r.ratio = width, height, ratio
	r.live = 0
	r.image = false
	r.ops = append(r.ops, Op{Kind: OpResize})
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = 0
	r.image = false
	r.ops = append(r.ops, Op{Kind: OpClear})
}

func (r *Recorder) DrawSegment(seg Segment, style Style) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live++
	r.ops = append(r.ops, Op{Kind: OpSegment, Segment: seg, Style: style})
}

func (r *Recorder) DrawImage(img image.Image) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image = true
	r.ops = append(r.ops, Op{Kind: OpImage})
}

func (r *Recorder) Snapshot() image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	a := uint8(0)
	if r.image {
		a = 0xFF
	}
	img.SetNRGBA(0, 0, color.NRGBA{R: uint8(r.live), G: uint8(r.live >> 8), A: a})
	return img
}

// Ops returns a copy of the recorded calls.
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Op, len(r.ops))
	copy(out, r.ops)
	return out
}

// Reset forgets all recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
}

// LiveSegments returns the number of segments drawn since the last Clear or Resize.
func (r *Recorder) LiveSegments() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// Size returns the last dimensions passed to Resize.
func (r *Recorder) Size() (width, height, ratio float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height, r.ratio
}
