// Package wizard drives the three-step signing flow: review the document,
// sign each field, confirm and submit.
//
// Transitions:
//
//	review  -> sign     always
//	sign    -> review   always
//	sign    -> confirm  only when every required field is completed
//	confirm -> sign     always
//
// Every mutation is checkpointed through a checkpoint.Journal keyed by the
// signing token, so a closed window can resume where it stopped.
package wizard

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"leasesign/internal/checkpoint"
	"leasesign/internal/field"
)

// Step is one stage of the signing flow.
type Step string

const (
	StepReview  Step = "review"
	StepSign    Step = "sign"
	StepConfirm Step = "confirm"
)

// Steps lists the stages in order.
var Steps = []Step{StepReview, StepSign, StepConfirm}

// Index is the zero-based position of s in Steps, or -1.
func (s Step) Index() int {
	for i, st := range Steps {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool { return s.Index() >= 0 }

// Title is the label shown in the step indicator.
func (s Step) Title() string {
	switch s {
	case StepReview:
		return "Review"
	case StepSign:
		return "Sign"
	case StepConfirm:
		return "Confirm"
	}
	return string(s)
}

// ErrInvalidTransition is returned for a transition not allowed from the
// current step.
var ErrInvalidTransition = errors.New("wizard: invalid transition")

// IncompleteError rejects sign -> confirm and names the required fields that
// still need a value.
type IncompleteError struct {
	Missing []field.Field
}

func (e *IncompleteError) Error() string {
	labels := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		labels[i] = f.Label
		if labels[i] == "" {
			labels[i] = f.ID
		}
	}
	return fmt.Sprintf("%d required field(s) incomplete: %s", len(e.Missing), strings.Join(labels, ", "))
}

// Is lets errors.Is(err, ErrInvalidTransition) match a rejected confirm.
func (e *IncompleteError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithJournal enables checkpointing.
func WithJournal(j *checkpoint.Journal) Option {
	return func(w *Wizard) { w.journal = j }
}

// WithSaveErrorHandler receives checkpoint failures from automatic saves.
// Without one they are only kept for LastSaveError.
func WithSaveErrorHandler(fn func(error)) Option {
	return func(w *Wizard) { w.onSaveError = fn }
}

// WithSaveTimeout bounds each automatic checkpoint write.
func WithSaveTimeout(d time.Duration) Option {
	return func(w *Wizard) { w.saveTimeout = d }
}

// WithStepListener is called after every step change, outside the lock.
func WithStepListener(fn func(from, to Step)) Option {
	return func(w *Wizard) { w.onStep = fn }
}

const defaultSaveTimeout = 2 * time.Second

// Wizard owns the field list and step for one signing session. It is safe
// for concurrent use.
type Wizard struct {
	mu      sync.Mutex
	token   string
	step    Step
	fields  *field.Set
	current int

	journal     *checkpoint.Journal
	saveTimeout time.Duration
	onSaveError func(error)
	onStep      func(from, to Step)
	lastSaveErr error
}

// New returns a wizard in the review step with no fields.
func New(token string, opts ...Option) *Wizard {
	w := &Wizard{
		token:       token,
		step:        StepReview,
		fields:      field.NewSet(nil),
		saveTimeout: defaultSaveTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Token is the signing token the wizard is bound to.
func (w *Wizard) Token() string { return w.token }

// Initialize replaces the field list and returns to the first field. It does
// not write a checkpoint, so a stored one survives until Restore reads it.
func (w *Wizard) Initialize(defs []field.Field) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fields.Initialize(defs)
	w.current = 0
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// BeginSigning moves review -> sign.
func (w *Wizard) BeginSigning() error {
	return w.transition(StepReview, StepSign, nil)
}

// Confirm moves sign -> confirm. It fails with *IncompleteError while any
// required field lacks a value.
func (w *Wizard) Confirm() error {
	return w.transition(StepSign, StepConfirm, func() error {
		if missing := w.fields.MissingRequired(); len(missing) > 0 {
			return &IncompleteError{Missing: missing}
		}
		return nil
	})
}

// Back moves one step backwards. It fails in review.
func (w *Wizard) Back() error {
	w.mu.Lock()
	from := w.step
	w.mu.Unlock()
	switch from {
	case StepSign:
		return w.transition(StepSign, StepReview, nil)
	case StepConfirm:
		return w.transition(StepConfirm, StepSign, nil)
	}
	return fmt.Errorf("%w: no step before %s", ErrInvalidTransition, from)
}

func (w *Wizard) transition(from, to Step, guard func() error) error {
	w.mu.Lock()
	if w.step != from {
		cur := w.step
		w.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s from %s", ErrInvalidTransition, from, to, cur)
	}
	if guard != nil {
		if err := guard(); err != nil {
			w.mu.Unlock()
			return err
		}
	}
	w.step = to
	w.clampLocked()
	onStep := w.onStep
	w.mu.Unlock()

	w.autosave()
	if onStep != nil {
		onStep(from, to)
	}
	return nil
}

func (w *Wizard) clampLocked() {
	n := w.fields.Len()
	switch {
	case n == 0:
		w.current = 0
	case w.current < 0:
		w.current = 0
	case w.current >= n:
		w.current = n - 1
	}
}

// GoToField moves the field cursor, clamped into range.
func (w *Wizard) GoToField(index int) int {
	w.mu.Lock()
	w.current = index
	w.clampLocked()
	cur := w.current
	w.mu.Unlock()
	w.autosave()
	return cur
}

// NextField advances the cursor by one, stopping at the last field.
func (w *Wizard) NextField() int {
	return w.GoToField(w.CurrentIndex() + 1)
}

// PrevField moves the cursor back by one, stopping at the first field.
func (w *Wizard) PrevField() int {
	return w.GoToField(w.CurrentIndex() - 1)
}

// NextIncomplete moves the cursor to the next field without a value,
// searching forward from the current one. It reports false when all
// fields are complete and leaves the cursor alone.
func (w *Wizard) NextIncomplete() (int, bool) {
	w.mu.Lock()
	i, ok := w.fields.NextIncomplete(w.current)
	if ok {
		w.current = i
	}
	cur := w.current
	w.mu.Unlock()
	if ok {
		w.autosave()
	}
	return cur, ok
}

// CurrentIndex is the field cursor.
func (w *Wizard) CurrentIndex() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// CurrentField returns the field under the cursor.
func (w *Wizard) CurrentField() (field.Field, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := w.fields.At(w.current)
	return f, err == nil
}

// CompleteField stores value for id. Unknown ids and empty values are
// ignored.
func (w *Wizard) CompleteField(id, value string) bool {
	w.mu.Lock()
	changed := w.fields.Complete(id, value)
	w.mu.Unlock()
	if changed {
		w.autosave()
	}
	return changed
}

// CompleteCurrent stores value for the field under the cursor.
func (w *Wizard) CompleteCurrent(value string) bool {
	f, ok := w.CurrentField()
	if !ok {
		return false
	}
	return w.CompleteField(f.ID, value)
}

// ResetField clears a completed field. Resetting a required field while in
// confirm drops back to sign, since confirm requires every required field.
func (w *Wizard) ResetField(id string) bool {
	w.mu.Lock()
	changed := w.fields.Reset(id)
	var from Step
	stepped := false
	if changed && w.step == StepConfirm && !w.fields.AllComplete() {
		from, w.step = w.step, StepSign
		stepped = true
	}
	onStep := w.onStep
	w.mu.Unlock()

	if changed {
		w.autosave()
	}
	if stepped && onStep != nil {
		onStep(from, StepSign)
	}
	return changed
}

// Field returns a copy of the field with the given id.
func (w *Wizard) Field(id string) (field.Field, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fields.Get(id)
}

// Fields returns copies of all fields in order.
func (w *Wizard) Fields() []field.Field {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fields.Fields()
}

// AllComplete reports whether every required field has a value.
func (w *Wizard) AllComplete() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fields.AllComplete()
}

// Missing lists required fields still without a value.
func (w *Wizard) Missing() []field.Field {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fields.MissingRequired()
}

// Progress reports overall completion for the progress bar.
func (w *Wizard) Progress() Progress {
	w.mu.Lock()
	defer w.mu.Unlock()
	return newProgress(w.step, w.fields.CompletedCount(), w.fields.CompletedRequired(), w.fields.TotalRequired(), w.fields.Len())
}
