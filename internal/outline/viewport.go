package outline

import (
	"time"
)

// Defaults used by the signing shell.
const (
	DefaultActiveThreshold float32 = 100
	DefaultScrollOffset    float32 = 20
	DefaultScrollDuration          = 300 * time.Millisecond
)

// FindActiveSection returns the last section whose top is at or above
// scrollTop+threshold, i.e. the section currently at the top of the viewport.
// When no section qualifies the first one is returned. ok is false only when
// sections is empty.
func FindActiveSection(sections []Section, scrollTop, threshold float32) (s Section, ok bool) {
	if len(sections) == 0 {
		return Section{}, false
	}
	line := scrollTop + threshold
	active := sections[0]
	for _, sec := range sections {
		if sec.OffsetTop <= line {
			active = sec
		}
	}
	return active, true
}

// Viewport describes a scrolling container.
type Viewport struct {
	ScrollTop    float32
	ClientHeight float32
	ScrollHeight float32
}

// MaxScroll is the largest valid ScrollTop.
func (v Viewport) MaxScroll() float32 {
	return max(v.ScrollHeight-v.ClientHeight, 0)
}

// Overflows reports whether there is anything to scroll.
func (v Viewport) Overflows() bool {
	return v.ScrollHeight > v.ClientHeight
}

// ScrollProgress returns the scrolled percentage in [0, 100]. Content that
// fits the container counts as fully read.
func ScrollProgress(v Viewport) float32 {
	if !v.Overflows() {
		return 100
	}
	p := v.ScrollTop / v.MaxScroll() * 100
	return min(max(p, 0), 100)
}

// Container is a scrollable element the outline can drive.
type Container interface {
	Viewport() Viewport
	SetScrollTop(top float32)
}

// ScrollTarget returns the scroll position that puts s just below the top
// edge of v, offset by offset, clamped to the scrollable range.
func ScrollTarget(v Viewport, s Section, offset float32) float32 {
	target := s.OffsetTop - offset
	return min(max(target, 0), v.MaxScroll())
}

// ScrollToSection starts a smooth scroll of c towards the section with the
// given id. It returns false when the id is unknown.
func ScrollToSection(c Container, sections []Section, id string, offset float32, now time.Time) (*Scroller, bool) {
	for _, s := range sections {
		if s.ID != id {
			continue
		}
		v := c.Viewport()
		return &Scroller{
			target:   c,
			from:     v.ScrollTop,
			to:       ScrollTarget(v, s, offset),
			start:    now,
			duration: DefaultScrollDuration,
		}, true
	}
	return nil, false
}

// Scroller animates a container towards a target with ease-in-out timing.
// The caller drives it from its frame clock.
type Scroller struct {
	target   Container
	from     float32
	to       float32
	start    time.Time
	duration time.Duration
}

// Target is the final scroll position.
func (s *Scroller) Target() float32 { return s.to }

// Tick moves the container to its position at now and reports whether the
// animation has finished.
func (s *Scroller) Tick(now time.Time) bool {
	elapsed := now.Sub(s.start)
	if elapsed >= s.duration || s.duration <= 0 {
		s.target.SetScrollTop(s.to)
		return true
	}
	t := float32(elapsed) / float32(s.duration)
	s.target.SetScrollTop(s.from + (s.to-s.from)*easeInOut(max(t, 0)))
	return false
}

func easeInOut(t float32) float32 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	f := -2*t + 2
	return 1 - f*f*f/2
}
