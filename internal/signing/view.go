package signing

import (
	"strings"
	"time"

	"leasesign/internal/field"
	"leasesign/internal/outline"
	"leasesign/internal/wizard"
)

// View is a snapshot of everything the modal renders.
type View struct {
	Phase     Phase
	Step      wizard.Step
	StepTitle string
	Progress  wizard.Progress

	DocumentTitle string
	SignerName    string
	SignerEmail   string

	Sections       []outline.Section
	ActiveSection  string
	ScrollProgress float32

	Fields       []field.Field
	CurrentField int
	// FieldSection is the outline section the current field belongs to.
	FieldSection string
	Missing      []string

	Consent    bool
	Resumed    bool
	Submitting bool
	CanSubmit  bool
	// Blocked explains why submit is unavailable while in confirm.
	Blocked string
	Error   string
}

// View returns the current view model.
func (s *Shell) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Phase:        s.phase,
		Step:         s.wiz.Step(),
		Progress:     s.wiz.Progress(),
		SignerName:   s.signerName,
		SignerEmail:  s.signerEmail,
		Fields:       s.wiz.Fields(),
		CurrentField: s.wiz.CurrentIndex(),
		Consent:      s.consent,
		Resumed:      s.resumed,
		Submitting:   s.phase == PhaseSubmitting,
		Error:        UserMessage(s.err),
	}
	v.StepTitle = v.Step.Title()
	for _, f := range s.wiz.Missing() {
		v.Missing = append(v.Missing, f.ID)
	}
	if s.session != nil {
		v.DocumentTitle = s.session.DocumentTitle
	}
	if s.doc != nil {
		v.Sections = s.doc.Sections()
		if sec, ok := outline.FindActiveSection(v.Sections, s.viewport.ScrollTop, s.threshold); ok {
			v.ActiveSection = sec.ID
		}
		v.ScrollProgress = outline.ScrollProgress(s.viewport)
		if v.CurrentField < len(v.Fields) {
			if sec, ok := sectionFor(v.Sections, v.Fields[v.CurrentField]); ok {
				v.FieldSection = sec.ID
			}
		}
	}

	err := s.canSubmitLocked()
	v.CanSubmit = err == nil
	if err != nil && v.Step == wizard.StepConfirm {
		v.Blocked = UserMessage(err)
	}
	return v
}

// sectionFor matches a field's section context against section titles,
// first exactly and then by prefix.
func sectionFor(sections []outline.Section, f field.Field) (outline.Section, bool) {
	ctx := strings.TrimSpace(f.SectionContext)
	if ctx == "" {
		return outline.Section{}, false
	}
	for _, sec := range sections {
		if strings.EqualFold(sec.Title, ctx) {
			return sec, true
		}
	}
	for _, sec := range sections {
		if strings.HasPrefix(strings.ToLower(sec.Title), strings.ToLower(ctx)) {
			return sec, true
		}
	}
	return outline.Section{}, false
}

// SetViewport records the document container geometry after layout or a
// user scroll.
func (s *Shell) SetViewport(v outline.Viewport) {
	s.mu.Lock()
	s.viewport = v
	s.mu.Unlock()
	s.changed()
}

// Viewport returns the last recorded container geometry, including
// positions set by a running Scroller.
func (s *Shell) Viewport() outline.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// ScrollToSection starts a smooth scroll to the section with id. The caller
// ticks the returned Scroller from its frame clock.
func (s *Shell) ScrollToSection(id string) (*outline.Scroller, bool) {
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()
	if doc == nil {
		return nil, false
	}
	return outline.ScrollToSection(docContainer{s}, doc.Sections(), id, s.scrollOffset, s.now())
}

// ScrollToCurrentField scrolls to the section the current field belongs to.
func (s *Shell) ScrollToCurrentField() (*outline.Scroller, bool) {
	f, ok := s.wiz.CurrentField()
	doc := s.Document()
	if !ok || doc == nil {
		return nil, false
	}
	sec, ok := sectionFor(doc.Sections(), f)
	if !ok {
		return nil, false
	}
	return s.ScrollToSection(sec.ID)
}

// Now is the shell's clock, for driving scrollers.
func (s *Shell) Now() time.Time { return s.now() }

// docContainer exposes the shell's viewport to outline scrollers.
type docContainer struct{ s *Shell }

func (c docContainer) Viewport() outline.Viewport {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.viewport
}

func (c docContainer) SetScrollTop(top float32) {
	c.s.mu.Lock()
	c.s.viewport.ScrollTop = top
	c.s.mu.Unlock()
	c.s.changed()
}
