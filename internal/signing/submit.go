package signing

import (
	"context"
	"errors"
	"fmt"

	"leasesign/internal/field"
	"leasesign/internal/gateway"
	"leasesign/internal/notify"
	"leasesign/internal/wizard"
)

// CanSubmit returns nil when Submit would be attempted, or the reason it
// would be refused.
func (s *Shell) CanSubmit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canSubmitLocked()
}

func (s *Shell) canSubmitLocked() error {
	if err := s.readyLocked(); err != nil {
		return err
	}
	if s.wiz.Step() != wizard.StepConfirm {
		return &ValidationError{Reason: ReasonWrongStep}
	}
	if missing := s.wiz.Missing(); len(missing) > 0 {
		return &ValidationError{Reason: ReasonIncomplete, Missing: missing}
	}
	if !s.consent {
		return &ValidationError{Reason: ReasonConsent}
	}
	if s.signerName == "" {
		return &ValidationError{Reason: ReasonSignerName}
	}
	if primarySignature(s.wiz.Fields()) < 0 {
		return &ValidationError{Reason: ReasonSignature}
	}
	return nil
}

// primarySignature returns the index of the field whose image is sent as the
// signature: the first completed signature field, else the first completed
// initial field.
func primarySignature(fields []field.Field) int {
	fallback := -1
	for i, f := range fields {
		if !f.Completed || f.Value == nil || *f.Value == "" {
			continue
		}
		switch f.Type {
		case field.TypeSignature:
			return i
		case field.TypeInitial:
			if fallback < 0 {
				fallback = i
			}
		}
	}
	return fallback
}

// Submit sends the completed signature. Concurrent calls share one request
// and a call made while a submission is in flight is refused. On failure the
// shell returns to ready with every field intact, so Submit can simply be
// called again; the same idempotency key is reused. On success the stored
// checkpoint is cleared.
func (s *Shell) Submit(ctx context.Context) error {
	if err := s.CanSubmit(); err != nil {
		return err
	}
	_, err, _ := s.submits.Do(s.token, func() (any, error) {
		return nil, s.submit(ctx)
	})
	return err
}

func (s *Shell) submit(ctx context.Context) error {
	s.mu.Lock()
	if err := s.canSubmitLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	sub := s.payloadLocked()
	s.phase = PhaseSubmitting
	s.err = nil
	s.attempts++
	attempt := s.attempts
	gen := s.gen
	s.mu.Unlock()

	s.pad.SetDisabled(true)
	s.log.Info("submitting signature", "attempt", attempt)
	s.changed()

	err := s.gw.SubmitSignature(ctx, s.token, sub, s.idemKey)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.log.Debug("dropping stale submission result", "attempt", attempt)
		return ErrClosed
	}
	if err != nil {
		s.phase = PhaseReady
		s.err = err
		s.mu.Unlock()

		var subErr *gateway.SubmissionError
		status := 0
		if errors.As(err, &subErr) {
			status = subErr.Status
		}
		s.log.Warn("submission failed", "attempt", attempt, "status", status, "error", err)
		s.audit.LogSubmissionFailed(ctx, status, attempt, err)
		s.changed()
		return err
	}
	s.phase = PhaseSubmitted
	title := s.session.DocumentTitle
	s.mu.Unlock()

	s.log.Info("signature submitted", "attempt", attempt)
	s.audit.LogSubmitted(ctx, attempt)
	if err := s.wiz.ClearProgress(ctx); err != nil {
		s.log.Warn("clear checkpoint failed", "error", err)
	} else {
		s.audit.LogCheckpointCleared(ctx, "submitted")
	}
	if title == "" {
		title = "Your lease"
	}
	n := notify.Notification{Title: "Lease signed", Body: fmt.Sprintf("%s was signed and submitted.", title)}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Debug("notification failed", "error", err)
	}
	s.changed()
	return nil
}

// payloadLocked builds the submission. The primary signature goes in
// SignatureImage; other drawn fields go in InitialsData and date and text
// fields in FieldValues.
func (s *Shell) payloadLocked() gateway.Submission {
	fields := s.wiz.Fields()
	primary := primarySignature(fields)
	sub := gateway.Submission{
		SignerName:   s.signerName,
		SignerEmail:  s.signerEmail,
		Consent:      s.consent,
		InitialsData: []gateway.FieldValue{},
	}
	for i, f := range fields {
		if !f.Completed || f.Value == nil {
			continue
		}
		v := gateway.FieldValue{ID: f.ID, Value: *f.Value}
		switch {
		case i == primary:
			sub.SignatureImage = v.Value
		case f.Type.Drawn():
			sub.InitialsData = append(sub.InitialsData, v)
		default:
			sub.FieldValues = append(sub.FieldValues, v)
		}
	}
	return sub
}

// Attempts is the number of submits sent so far.
func (s *Shell) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}
