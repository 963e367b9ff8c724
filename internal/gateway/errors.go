package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	msgUnreachable    = "Unable to reach the signing service. Check your connection and try again."
	msgInvalidLink    = "This signing link is invalid or has expired."
	msgBadSession     = "The signing service returned an invalid session."
	msgLoadFailed     = "Failed to load the signing session."
	msgSubmitFailed   = "Failed to submit your signature. Please try again."
	msgDocumentFailed = "Failed to load the lease document."
)

// SessionLoadError reports a failed session or document fetch. Message is
// safe to show to the signer. Status is zero for transport failures.
type SessionLoadError struct {
	Status  int
	Message string
	Err     error
}

func (e *SessionLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load session: %s: %v", e.Message, e.Err)
	}
	return "load session: " + e.Message
}

func (e *SessionLoadError) Unwrap() error { return e.Err }

// SubmissionError reports a failed submit. The signer's field values are
// untouched and the submit can be retried.
type SubmissionError struct {
	Status  int
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submit signature: %s: %v", e.Message, e.Err)
	}
	return "submit signature: " + e.Message
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same request could succeed.
func (e *SubmissionError) Temporary() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// serverMessage extracts {"message": "..."} from an error body.
func serverMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	if m := strings.TrimSpace(payload.Message); m != "" {
		return m
	}
	return strings.TrimSpace(payload.Error)
}

func loadStatusError(resp *http.Response) *SessionLoadError {
	msg := serverMessage(resp.Body)
	if msg == "" {
		switch resp.StatusCode {
		case http.StatusNotFound, http.StatusGone, http.StatusUnauthorized, http.StatusForbidden:
			msg = msgInvalidLink
		default:
			msg = fmt.Sprintf("%s (status %d)", msgLoadFailed, resp.StatusCode)
		}
	}
	return &SessionLoadError{Status: resp.StatusCode, Message: msg}
}

func submitStatusError(resp *http.Response) *SubmissionError {
	msg := serverMessage(resp.Body)
	if msg == "" {
		msg = fmt.Sprintf("%s (status %d)", msgSubmitFailed, resp.StatusCode)
	}
	return &SubmissionError{Status: resp.StatusCode, Message: msg}
}
