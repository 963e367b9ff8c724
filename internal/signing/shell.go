// Package signing composes the session gateway, the signing wizard, the
// document outline and the stroke pad into one signing flow.
//
// A Shell is the controller behind the signing modal. It owns the wizard and
// the pad; user interfaces read its View and call its operations, and never
// touch field state directly.
//
// Lifecycle:
//
//	loading -> ready -> submitting -> submitted
//	   |         ^          |
//	   v         +----------+ (submission failed)
//	 failed
//
// Close moves any phase to closed. Responses that arrive after Close are
// discarded; the stored checkpoint is kept so the session can be resumed.
package signing

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"leasesign/internal/checkpoint"
	"leasesign/internal/field"
	"leasesign/internal/gateway"
	"leasesign/internal/logging"
	"leasesign/internal/notify"
	"leasesign/internal/outline"
	"leasesign/internal/stroke"
	"leasesign/internal/wizard"
)

// Phase is the lifecycle state of a Shell.
type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseFailed     Phase = "failed"
	PhaseReady      Phase = "ready"
	PhaseSubmitting Phase = "submitting"
	PhaseSubmitted  Phase = "submitted"
	PhaseClosed     Phase = "closed"
)

const (
	msgExpired       = "This signing link has expired."
	msgUnrenderable  = "The lease document could not be displayed."
	defaultPadWidth  = 400
	defaultPadHeight = 160
)

// Gateway is the lease service as seen by the shell.
type Gateway interface {
	LoadSession(ctx context.Context, token string) (*gateway.Session, error)
	FetchDocument(ctx context.Context, s *gateway.Session) (string, error)
	SubmitSignature(ctx context.Context, token string, sub gateway.Submission, idempotencyKey string) error
}

var _ Gateway = (*gateway.Client)(nil)

// Option configures a Shell.
type Option func(*Shell)

// WithJournal persists wizard progress so the session can be resumed.
func WithJournal(j *checkpoint.Journal) Option {
	return func(s *Shell) { s.journal = j }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Shell) { s.log = l }
}

// WithAudit sets the signing audit trail.
func WithAudit(a *logging.AuditLogger) Option {
	return func(s *Shell) { s.audit = a }
}

// WithNotifier announces a successful submission.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Shell) { s.notifier = n }
}

// WithMeasurer sets how document blocks are measured for scroll sync.
func WithMeasurer(m outline.Measurer) Option {
	return func(s *Shell) { s.measurer = m }
}

// WithSurface sets the drawing surface of the signature pad. The default is
// a software Raster.
func WithSurface(surface stroke.Surface) Option {
	return func(s *Shell) { s.surface = surface }
}

// WithPadStyle sets the pen.
func WithPadStyle(style stroke.Style) Option {
	return func(s *Shell) { s.padStyle = style }
}

// WithPadSize sets the pad's visual size and pixel ratio.
func WithPadSize(width, height, ratio float32) Option {
	return func(s *Shell) { s.padW, s.padH, s.padRatio = width, height, ratio }
}

// WithAutoDate fills empty date fields with today's date in layout when the
// session opens. An empty layout disables it.
func WithAutoDate(layout string) Option {
	return func(s *Shell) { s.dateLayout = layout }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Shell) { s.now = now }
}

// WithActiveThreshold sets the distance below the viewport top at which a
// heading becomes the active section.
func WithActiveThreshold(t float32) Option {
	return func(s *Shell) { s.threshold = t }
}

// WithScrollOffset sets the gap left above a section scrolled into view.
func WithScrollOffset(offset float32) Option {
	return func(s *Shell) { s.scrollOffset = offset }
}

// WithIdempotencyKey fixes the submission key instead of generating one.
func WithIdempotencyKey(key string) Option {
	return func(s *Shell) { s.idemKey = key }
}

// WithOnChange is called after every state change, from whichever goroutine
// made it. GUIs use it to schedule a redraw.
func WithOnChange(fn func()) Option {
	return func(s *Shell) { s.onChange = fn }
}

// Shell drives one signing session. It is safe for concurrent use.
type Shell struct {
	mu sync.Mutex

	token    string
	gw       Gateway
	journal  *checkpoint.Journal
	log      *logging.Logger
	audit    *logging.AuditLogger
	notifier notify.Notifier
	measurer outline.Measurer
	now      func() time.Time
	onChange func()

	surface  stroke.Surface
	padStyle stroke.Style
	padW     float32
	padH     float32
	padRatio float32

	dateLayout   string
	threshold    float32
	scrollOffset float32

	phase       Phase
	gen         uint64
	err         error
	session     *gateway.Session
	doc         *outline.Document
	resumed     bool
	consent     bool
	signerName  string
	signerEmail string
	viewport    outline.Viewport
	idemKey     string
	attempts    int

	wiz     *wizard.Wizard
	pad     *stroke.Pad
	submits singleflight.Group
}

// New creates a shell for token in the loading phase. Call Open to fetch the
// session.
func New(token string, gw Gateway, opts ...Option) *Shell {
	s := &Shell{
		token:        token,
		gw:           gw,
		notifier:     notify.Nop,
		measurer:     outline.DefaultMeasurer(),
		now:          time.Now,
		padStyle:     stroke.DefaultStyle,
		padW:         defaultPadWidth,
		padH:         defaultPadHeight,
		padRatio:     1,
		threshold:    outline.DefaultActiveThreshold,
		scrollOffset: outline.DefaultScrollOffset,
		phase:        PhaseLoading,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.NewWithWriter(io.Discard, logging.DefaultConfig())
	}
	s.log = s.log.WithComponent("signing").WithSession(token)
	if s.surface == nil {
		s.surface = stroke.NewRaster()
	}
	if s.idemKey == "" {
		s.idemKey = uuid.NewString()
	}
	s.audit.SetSession(token)

	wopts := []wizard.Option{
		wizard.WithStepListener(s.stepChanged),
		wizard.WithSaveErrorHandler(func(err error) {
			s.log.Warn("checkpoint save failed", "error", err)
		}),
	}
	if s.journal != nil {
		wopts = append(wopts, wizard.WithJournal(s.journal))
	}
	s.wiz = wizard.New(token, wopts...)
	s.pad = stroke.NewPad(s.surface,
		stroke.WithStyle(s.padStyle),
		stroke.WithSize(s.padW, s.padH, s.padRatio),
		stroke.WithOnChange(func(image.Image) { s.changed() }),
	)
	s.pad.SetDisabled(true)
	return s
}

// Token is the signing token.
func (s *Shell) Token() string { return s.token }

// Pad is the signature pad. Pointer input goes straight to it; it is enabled
// only while a drawn field is selected in the sign step.
func (s *Shell) Pad() *stroke.Pad { return s.pad }

// IdempotencyKey is sent with every submit attempt of this shell.
func (s *Shell) IdempotencyKey() string { return s.idemKey }

// Phase returns the lifecycle phase.
func (s *Shell) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Err returns the last load or submit error, nil after a success.
func (s *Shell) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Document returns the parsed lease, nil until the session is ready.
func (s *Shell) Document() *outline.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Fields returns a copy of the field list.
func (s *Shell) Fields() []field.Field { return s.wiz.Fields() }

// Step returns the wizard step.
func (s *Shell) Step() wizard.Step { return s.wiz.Step() }

func (s *Shell) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Open loads the session and its document, restores any stored progress and
// moves to ready. On failure the shell is in the failed phase and Open may be
// called again. A result that arrives after Close is dropped with ErrClosed.
func (s *Shell) Open(ctx context.Context) error {
	s.mu.Lock()
	switch s.phase {
	case PhaseClosed:
		s.mu.Unlock()
		return ErrClosed
	case PhaseReady, PhaseSubmitting, PhaseSubmitted:
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen := s.gen
	s.phase = PhaseLoading
	s.err = nil
	s.mu.Unlock()
	s.changed()

	sess, doc, err := s.load(ctx)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.log.Debug("dropping stale session load")
		return ErrClosed
	}
	if err != nil {
		s.phase = PhaseFailed
		s.err = err
		s.mu.Unlock()

		var loadErr *gateway.SessionLoadError
		status := 0
		if errors.As(err, &loadErr) {
			status = loadErr.Status
		}
		s.log.Warn("session load failed", "status", status, "error", err)
		s.audit.LogSessionLoadFailed(ctx, status, err)
		s.changed()
		return err
	}
	s.session = sess
	s.doc = doc
	s.signerName = sess.SignerName
	s.signerEmail = sess.SignerEmail
	s.mu.Unlock()

	s.wiz.Initialize(sess.Fields)
	resumed, err := s.wiz.Restore(ctx)
	switch {
	case err != nil:
		reason := "corrupt"
		if errors.Is(err, checkpoint.ErrExpired) {
			reason = "expired"
		}
		s.log.Warn("discarding stored progress", "reason", reason, "error", err)
		s.audit.LogCheckpointCleared(ctx, reason)
	case resumed:
		p := s.wiz.Progress()
		s.log.Info("resuming stored progress", "step", p.Step, "completed", p.Completed)
		s.audit.LogCheckpointRestored(ctx, string(p.Step), p.Completed)
	}
	s.fillDates()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return ErrClosed
	}
	s.phase = PhaseReady
	s.resumed = resumed
	s.mu.Unlock()

	s.syncPad()
	p := s.wiz.Progress()
	s.log.Info("session loaded", "fields", p.Total, "required", p.TotalRequired, "resumed", resumed)
	s.audit.LogSessionLoaded(ctx, p.Total, p.TotalRequired, resumed)
	s.changed()
	return nil
}

func (s *Shell) load(ctx context.Context) (*gateway.Session, *outline.Document, error) {
	sess, err := s.gw.LoadSession(ctx, s.token)
	if err != nil {
		return nil, nil, err
	}
	if sess.ExpiresAt != nil && !s.now().Before(*sess.ExpiresAt) {
		return nil, nil, &gateway.SessionLoadError{Status: 410, Message: msgExpired}
	}
	html, err := s.gw.FetchDocument(ctx, sess)
	if err != nil {
		return nil, nil, err
	}
	doc, err := outline.ParseString(html, s.measurer)
	if err != nil {
		return nil, nil, &gateway.SessionLoadError{Message: msgUnrenderable, Err: err}
	}
	return sess, doc, nil
}

func (s *Shell) fillDates() {
	if s.dateLayout == "" {
		return
	}
	today := s.now().Format(s.dateLayout)
	for _, f := range s.wiz.Fields() {
		if f.Type == field.TypeDate && !f.Completed {
			s.wiz.CompleteField(f.ID, today)
		}
	}
}

// Close ends the session. In-flight responses are ignored from now on and
// the stored checkpoint is left for a later resume.
func (s *Shell) Close() {
	s.mu.Lock()
	if s.phase == PhaseClosed {
		s.mu.Unlock()
		return
	}
	prev := s.phase
	s.gen++
	s.phase = PhaseClosed
	s.mu.Unlock()

	s.pad.SetDisabled(true)
	s.log.Info("signing closed", "phase", prev)
	s.changed()
}

func (s *Shell) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyLocked()
}

func (s *Shell) readyLocked() error {
	switch s.phase {
	case PhaseReady:
		return nil
	case PhaseSubmitting:
		return ErrSubmitInProgress
	case PhaseClosed:
		return ErrClosed
	}
	return ErrNotReady
}

func (s *Shell) stepChanged(from, to wizard.Step) {
	s.log.Info("step changed", "from", from, "to", to)
	s.audit.LogStepChanged(context.Background(), string(from), string(to))
	s.syncPad()
	s.changed()
}

// syncPad enables the pad for drawn fields in the sign step and shows the
// current field's stored image, if any.
func (s *Shell) syncPad() {
	s.mu.Lock()
	ready := s.phase == PhaseReady
	s.mu.Unlock()

	f, ok := s.wiz.CurrentField()
	if !ready || !ok || s.wiz.Step() != wizard.StepSign || !f.Type.Drawn() {
		s.pad.SetDisabled(true)
		return
	}
	s.pad.SetDisabled(false)
	if f.Completed && f.Value != nil {
		err := s.pad.LoadDataURL(*f.Value)
		if err == nil {
			return
		}
		s.log.Warn("stored signature unreadable", "field_id", f.ID, "error", err)
	}
	s.pad.Clear()
}

// BeginSigning moves from review to sign.
func (s *Shell) BeginSigning() error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.wiz.BeginSigning()
}

// Back moves one step backwards.
func (s *Shell) Back() error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.wiz.Back()
}

// Confirm moves from sign to confirm. Missing required fields are reported
// as a *ValidationError that also unwraps to *wizard.IncompleteError.
func (s *Shell) Confirm() error {
	if err := s.ready(); err != nil {
		return err
	}
	err := s.wiz.Confirm()
	var inc *wizard.IncompleteError
	if errors.As(err, &inc) {
		return &ValidationError{Reason: ReasonIncomplete, Missing: inc.Missing, Err: err}
	}
	return err
}

// GoToField selects a field by index, clamped into range, and returns the
// index selected.
func (s *Shell) GoToField(index int) int {
	i := s.wiz.GoToField(index)
	s.syncPad()
	s.changed()
	return i
}

// GoToFieldID selects the field with the given id.
func (s *Shell) GoToFieldID(id string) bool {
	for i, f := range s.wiz.Fields() {
		if f.ID == id {
			s.GoToField(i)
			return true
		}
	}
	return false
}

// NextField selects the following field.
func (s *Shell) NextField() int {
	i := s.wiz.NextField()
	s.syncPad()
	s.changed()
	return i
}

// PrevField selects the preceding field.
func (s *Shell) PrevField() int {
	i := s.wiz.PrevField()
	s.syncPad()
	s.changed()
	return i
}

// NextIncomplete selects the next field without a value, wrapping around.
// It returns false when every field has one.
func (s *Shell) NextIncomplete() bool {
	i, ok := s.wiz.NextIncomplete()
	if ok {
		s.GoToField(i)
	}
	return ok
}

// AdoptSignature stores the pad's image as the value of the current field.
func (s *Shell) AdoptSignature(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if s.wiz.Step() != wizard.StepSign {
		return &ValidationError{Reason: ReasonWrongStep}
	}
	f, ok := s.wiz.CurrentField()
	if !ok {
		return &ValidationError{Reason: ReasonUnknownField}
	}
	if !f.Type.Drawn() {
		return &ValidationError{Reason: ReasonNotDrawn}
	}
	if s.pad.IsEmpty() {
		return &ValidationError{Reason: ReasonEmptyPad}
	}
	img, err := s.pad.DataURL()
	if err != nil {
		return fmt.Errorf("encode signature: %w", err)
	}
	s.complete(ctx, f, img)
	return nil
}

// SetValue completes a date or text field.
func (s *Shell) SetValue(ctx context.Context, id, value string) error {
	if err := s.ready(); err != nil {
		return err
	}
	f, ok := s.wiz.Field(id)
	if !ok {
		return &ValidationError{Reason: ReasonUnknownField}
	}
	if f.Type.Drawn() {
		return &ValidationError{Reason: ReasonPadOnly}
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return &ValidationError{Reason: ReasonEmptyValue}
	}
	s.complete(ctx, f, value)
	return nil
}

func (s *Shell) complete(ctx context.Context, f field.Field, value string) {
	if !s.wiz.CompleteField(f.ID, value) {
		return
	}
	s.log.Debug("field completed", "field_id", f.ID, "type", f.Type)
	s.audit.LogFieldCompleted(ctx, f.ID, string(f.Type))
	s.changed()
}

// ResetField clears a completed field so it can be signed again. Clearing a
// required field while confirming returns to the sign step.
func (s *Shell) ResetField(ctx context.Context, id string) bool {
	if s.ready() != nil || !s.wiz.ResetField(id) {
		return false
	}
	s.audit.LogFieldReset(ctx, id)
	if cur, ok := s.wiz.CurrentField(); ok && cur.ID == id {
		s.syncPad()
	}
	s.changed()
	return true
}

// SetConsent records the electronic-signature consent checkbox.
func (s *Shell) SetConsent(consent bool) {
	s.mu.Lock()
	s.consent = consent
	s.mu.Unlock()
	s.changed()
}

// SetSigner overrides the signer identity sent with the submission.
func (s *Shell) SetSigner(name, email string) {
	s.mu.Lock()
	s.signerName = strings.TrimSpace(name)
	s.signerEmail = strings.TrimSpace(email)
	s.mu.Unlock()
	s.changed()
}
