package signing

import (
	"errors"
	"fmt"
	"strings"

	"leasesign/internal/field"
	"leasesign/internal/gateway"
)

var (
	// ErrClosed is returned to callers whose request finished after the
	// shell was closed or reopened. The response has been discarded.
	ErrClosed = errors.New("signing: shell closed")

	// ErrSubmitInProgress rejects a submit while another one is in flight.
	ErrSubmitInProgress = errors.New("signing: submission already in progress")

	// ErrNotReady rejects operations that need a loaded session.
	ErrNotReady = errors.New("signing: session not ready")
)

// Reason classifies a ValidationError.
type Reason string

const (
	ReasonIncomplete   Reason = "incomplete"
	ReasonConsent      Reason = "consent"
	ReasonSignature    Reason = "signature"
	ReasonEmptyPad     Reason = "empty_pad"
	ReasonNotDrawn     Reason = "not_drawn"
	ReasonSignerName   Reason = "signer_name"
	ReasonWrongStep    Reason = "wrong_step"
	ReasonUnknownField Reason = "unknown_field"
	ReasonEmptyValue   Reason = "empty_value"
	ReasonPadOnly      Reason = "pad_only"
)

// ValidationError is a local, synchronous refusal. The UI normally prevents
// these by disabling the control; the error says why it is disabled.
type ValidationError struct {
	Reason  Reason
	Missing []field.Field
	Err     error
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonIncomplete:
		labels := make([]string, len(e.Missing))
		for i, f := range e.Missing {
			labels[i] = displayLabel(f)
		}
		return "Complete the remaining required fields: " + strings.Join(labels, ", ") + "."
	case ReasonConsent:
		return "You must agree to sign electronically."
	case ReasonSignature:
		return "A signature is required before submitting."
	case ReasonEmptyPad:
		return "Draw your signature first."
	case ReasonNotDrawn:
		return "This field is not signed on the pad."
	case ReasonSignerName:
		return "Signer name is required."
	case ReasonWrongStep:
		return "Review and sign the document before submitting."
	case ReasonUnknownField:
		return "Unknown field."
	case ReasonEmptyValue:
		return "A value is required."
	case ReasonPadOnly:
		return "Sign this field on the signature pad."
	}
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func displayLabel(f field.Field) string {
	if f.Label != "" {
		return f.Label
	}
	return f.ID
}

// UserMessage returns the text to show the signer for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		loadErr   *gateway.SessionLoadError
		submitErr *gateway.SubmissionError
		valErr    *ValidationError
	)
	switch {
	case errors.As(err, &loadErr):
		return loadErr.Message
	case errors.As(err, &submitErr):
		return submitErr.Message
	case errors.As(err, &valErr):
		return valErr.Error()
	case errors.Is(err, ErrSubmitInProgress):
		return "Your signature is being submitted."
	}
	return "Something went wrong. Please try again."
}
