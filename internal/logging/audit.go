package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

// Audit event types.
const (
	AuditEventSessionLoaded      AuditEventType = "session_loaded"
	AuditEventSessionLoadFailed  AuditEventType = "session_load_failed"
	AuditEventFieldCompleted     AuditEventType = "field_completed"
	AuditEventFieldReset         AuditEventType = "field_reset"
	AuditEventStepChanged        AuditEventType = "step_changed"
	AuditEventSubmissionFailed   AuditEventType = "submission_failed"
	AuditEventSubmitted          AuditEventType = "submitted"
	AuditEventCheckpointRestored AuditEventType = "checkpoint_restored"
	AuditEventCheckpointCleared  AuditEventType = "checkpoint_cleared"
	AuditEventConfigChange       AuditEventType = "config_change"
)

// AuditEvent is one line of the signing audit trail. It never carries the
// signing token or any captured value; sessions are identified by Ref.
type AuditEvent struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventType  AuditEventType `json:"event_type"`
	Component  string         `json:"component"`
	SessionRef string         `json:"session_ref,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource,omitempty"`
	Result     string         `json:"result"` // "success", "failure", "rejected"
	Details    map[string]any `json:"details,omitempty"`
	Error      string         `json:"error,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
}

// AuditLoggerConfig holds configuration for the audit logger.
type AuditLoggerConfig struct {
	// FilePath is the path to the audit log file.
	FilePath string

	// MaxSize is the maximum size in MB before rotation.
	MaxSize int64

	// MaxAge is the maximum age in days before deletion.
	MaxAge int

	// MaxBackups is the maximum number of rotated files to keep.
	MaxBackups int

	// Compress determines if rotated logs should be compressed.
	Compress bool

	// Component is the component name for audit events.
	Component string
}

// DefaultAuditConfig returns default audit logger configuration.
func DefaultAuditConfig() *AuditLoggerConfig {
	return &AuditLoggerConfig{
		FilePath:   filepath.Join(StateDir(), "audit.log"),
		MaxSize:    10,
		MaxAge:     365,
		MaxBackups: 10,
		Compress:   true,
		Component:  "leasesign",
	}
}

// AuditLogger writes JSON-lines audit events. A nil *AuditLogger discards
// everything, so callers need no guard.
type AuditLogger struct {
	mu         sync.Mutex
	w          io.Writer
	closer     io.Closer
	component  string
	sessionRef string
	now        func() time.Time
}

// NewAuditLogger opens a rotating audit file.
func NewAuditLogger(cfg *AuditLoggerConfig) (*AuditLogger, error) {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}
	rotator, err := NewFileRotator(RotationConfig{
		Path:       cfg.FilePath,
		MaxSizeMB:  cfg.MaxSize,
		MaxAgeDays: cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("create audit rotator: %w", err)
	}
	a := NewAuditWriter(rotator, cfg.Component)
	a.closer = rotator
	return a, nil
}

// NewAuditWriter writes audit events to w.
func NewAuditWriter(w io.Writer, component string) *AuditLogger {
	return &AuditLogger{w: w, component: component, now: time.Now}
}

// SetSession binds subsequent events to the session for token.
func (a *AuditLogger) SetSession(token string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionRef = Ref(token)
}

// Log writes an audit event.
func (a *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = a.now().UTC()
	}
	if event.Component == "" {
		event.Component = a.component
	}
	if event.SessionRef == "" {
		event.SessionRef = a.sessionRef
	}
	if event.RequestID == "" {
		event.RequestID = RequestIDFromContext(ctx)
	}
	if event.Result == "" {
		event.Result = "success"
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	data = append(data, '\n')
	if _, err := a.w.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// LogSessionLoaded records a successful session load.
func (a *AuditLogger) LogSessionLoaded(ctx context.Context, fields, required int, resumed bool) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventSessionLoaded,
		Action:    "session_loaded",
		Details: map[string]any{
			"fields":   fields,
			"required": required,
			"resumed":  resumed,
		},
	})
}

// LogSessionLoadFailed records a load failure with the HTTP status, if any.
func (a *AuditLogger) LogSessionLoadFailed(ctx context.Context, status int, err error) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventSessionLoadFailed,
		Action:    "session_load",
		Result:    "failure",
		Error:     errString(err),
		Details:   map[string]any{"status": status},
	})
}

// LogFieldCompleted records that a field received a value.
func (a *AuditLogger) LogFieldCompleted(ctx context.Context, fieldID, fieldType string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventFieldCompleted,
		Action:    "field_completed",
		Resource:  fieldID,
		Details:   map[string]any{"type": fieldType},
	})
}

// LogFieldReset records that a field was cleared.
func (a *AuditLogger) LogFieldReset(ctx context.Context, fieldID string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventFieldReset,
		Action:    "field_reset",
		Resource:  fieldID,
	})
}

// LogStepChanged records a wizard transition.
func (a *AuditLogger) LogStepChanged(ctx context.Context, from, to string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventStepChanged,
		Action:    "step_changed",
		Details:   map[string]any{"from": from, "to": to},
	})
}

// LogSubmissionFailed records a failed submit.
func (a *AuditLogger) LogSubmissionFailed(ctx context.Context, status, attempt int, err error) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventSubmissionFailed,
		Action:    "submit",
		Result:    "failure",
		Error:     errString(err),
		Details:   map[string]any{"status": status, "attempt": attempt},
	})
}

// LogSubmitted records a successful submit.
func (a *AuditLogger) LogSubmitted(ctx context.Context, attempt int) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventSubmitted,
		Action:    "submit",
		Details:   map[string]any{"attempt": attempt},
	})
}

// LogCheckpointRestored records a resumed session.
func (a *AuditLogger) LogCheckpointRestored(ctx context.Context, step string, completed int) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventCheckpointRestored,
		Action:    "checkpoint_restored",
		Details:   map[string]any{"step": step, "completed": completed},
	})
}

// LogCheckpointCleared records deletion of stored progress.
func (a *AuditLogger) LogCheckpointCleared(ctx context.Context, reason string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventCheckpointCleared,
		Action:    "checkpoint_cleared",
		Details:   map[string]any{"reason": reason},
	})
}

// LogConfigChange logs a configuration change.
func (a *AuditLogger) LogConfigChange(ctx context.Context, setting, oldValue, newValue string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventConfigChange,
		Action:    "config_changed",
		Resource:  setting,
		Details: map[string]any{
			"old_value": oldValue,
			"new_value": newValue,
		},
	})
}

// Close closes the underlying file, if any.
func (a *AuditLogger) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
