package stroke

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// Raster is a software Surface backed by an RGBA buffer. Each curve piece is
// flattened into short chords and every chord is filled as a round-capped
// capsule, which gives round joins between chords for free.
type Raster struct {
	mu sync.Mutex

	img        *image.RGBA
	ratio      float32
	background color.Color

	// tolerance is the maximum chord length in backing pixels.
	tolerance float32
	z         vector.Rasterizer
}

// NewRaster returns a Raster with a transparent background. Call Resize (or
// hand it to NewPad) before drawing.
func NewRaster() *Raster {
	return &Raster{
		img:        image.NewRGBA(image.Rect(0, 0, 1, 1)),
		ratio:      1,
		background: color.Transparent,
		tolerance:  2,
	}
}

// SetBackground changes the fill used by Clear. It takes effect on the next Clear.
func (r *Raster) SetBackground(c color.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.background = c
}

func (r *Raster) Resize(width, height, ratio float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ratio <= 0 {
		ratio = 1
	}
	r.ratio = ratio
	w := int(math.Ceil(float64(width * ratio)))
	h := int(math.Ceil(float64(height * ratio)))
	r.img = image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	r.clearLocked()
}

func (r *Raster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
}

func (r *Raster) clearLocked() {
	draw.Draw(r.img, r.img.Bounds(), image.NewUniform(r.background), image.Point{}, draw.Src)
}

func (r *Raster) DrawSegment(seg Segment, style Style) {
	r.mu.Lock()
	defer r.mu.Unlock()

	radius := style.Width * r.ratio / 2
	if radius < 0.5 {
		radius = 0.5
	}
	src := image.NewUniform(style.Color)

	from := r.scale(seg.From)
	ctrl := r.scale(seg.Ctrl)
	to := r.scale(seg.To)
	length := dist(from, ctrl) + dist(ctrl, to)
	steps := int(math.Ceil(float64(length / r.tolerance)))
	steps = min(max(steps, 1), 64)

	scaled := Segment{From: from, Ctrl: ctrl, To: to}
	prev := from
	for i := 1; i <= steps; i++ {
		cur := scaled.At(float32(i) / float32(steps))
		r.capsule(prev, cur, radius, src)
		prev = cur
	}
}

func (r *Raster) scale(p Point) Point {
	return Point{X: p.X * r.ratio, Y: p.Y * r.ratio, Pressure: p.Pressure}
}

// capsulePoints is the number of vertices on each half circle.
const capsulePoints = 8

// capsule fills the stadium shape around the chord a-b. The path is a single
// convex contour, rasterised inside its own bounding box.
func (r *Raster) capsule(a, b Point, radius float32, src image.Image) {
	box := image.Rect(
		int(math.Floor(float64(min(a.X, b.X)-radius-1))),
		int(math.Floor(float64(min(a.Y, b.Y)-radius-1))),
		int(math.Ceil(float64(max(a.X, b.X)+radius+1))),
		int(math.Ceil(float64(max(a.Y, b.Y)+radius+1))),
	).Intersect(r.img.Bounds())
	if box.Empty() {
		return
	}

	theta := math.Atan2(float64(b.Y-a.Y), float64(b.X-a.X))
	ox, oy := float32(box.Min.X), float32(box.Min.Y)
	r.z.Reset(box.Dx(), box.Dy())

	first := true
	arc := func(c Point, start float64) {
		for i := 0; i <= capsulePoints; i++ {
			angle := start + math.Pi*float64(i)/capsulePoints
			x := c.X + radius*float32(math.Cos(angle)) - ox
			y := c.Y + radius*float32(math.Sin(angle)) - oy
			if first {
				r.z.MoveTo(x, y)
				first = false
				continue
			}
			r.z.LineTo(x, y)
		}
	}
	arc(b, theta-math.Pi/2)
	arc(a, theta+math.Pi/2)
	r.z.ClosePath()
	r.z.Draw(r.img, box, src, image.Point{})
}

func (r *Raster) DrawImage(img image.Image) {
	r.mu.Lock()
	defer r.mu.Unlock()
	xdraw.CatmullRom.Scale(r.img, r.img.Bounds(), img, img.Bounds(), draw.Over, nil)
}

func (r *Raster) Snapshot() image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := image.NewRGBA(r.img.Bounds())
	copy(out.Pix, r.img.Pix)
	return out
}

// Bounds returns the backing buffer size in pixels.
func (r *Raster) Bounds() image.Rectangle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.img.Bounds()
}

func dist(a, b Point) float32 {
	return float32(math.Hypot(float64(b.X-a.X), float64(b.Y-a.Y)))
}
