package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
	Warning bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// IsWarning reports a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool { return e.Warning }

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return strings.Join(msgs, "; ")
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// Is lets errors.Is(err, ErrInvalidConfig) match any collection with errors.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig && e.HasErrors()
}

// ValidateConfig checks every section and returns all problems found, or
// nil.
func ValidateConfig(c *Config) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs ValidationErrors
	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}
	errs = append(errs, validateService(&c.Service)...)
	errs = append(errs, validateCheckpoint(&c.Checkpoint)...)
	errs = append(errs, validateSigning(&c.Signing)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateGUI(&c.GUI)...)
	errs = append(errs, validateDevServer(&c.DevServer)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateService(s *ServiceConfig) ValidationErrors {
	var errs ValidationErrors

	if !isValidURL(s.BaseURL) {
		errs = append(errs, ValidationError{
			Field:   "service.base_url",
			Message: fmt.Sprintf("invalid URL: %q (must be http or https)", s.BaseURL),
		})
	} else if u, _ := url.Parse(s.BaseURL); u.Scheme == "http" && !isLoopback(u.Hostname()) {
		errs = append(errs, ValidationError{
			Field:   "service.base_url",
			Message: "plain http to a remote host sends signatures unencrypted",
			Warning: true,
		})
	}

	if s.TimeoutSec < 1 || s.TimeoutSec > 300 {
		errs = append(errs, *RangeError("service.timeout_sec", 1, 300))
	}
	if s.SubmitRatePerSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "service.submit_rate_per_sec",
			Message: "rate cannot be negative",
		})
	}
	if s.SubmitRatePerSec > 0 && s.SubmitBurst < 1 {
		errs = append(errs, ValidationError{
			Field:   "service.submit_burst",
			Message: "burst must be at least 1 when a rate is set",
		})
	}
	return errs
}

func validateCheckpoint(c *CheckpointConfig) ValidationErrors {
	var errs ValidationErrors

	switch c.Backend {
	case "memory":
	case "sqlite", "file":
		if c.Path == "" {
			errs = append(errs, *RequiredFieldError("checkpoint.path"))
		}
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, *RequiredFieldError("checkpoint.redis_addr"))
		} else if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "checkpoint.redis_addr",
				Message: fmt.Sprintf("invalid address %q: want host:port", c.RedisAddr),
			})
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			errs = append(errs, *RangeError("checkpoint.redis_db", 0, 15))
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "checkpoint.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: memory, sqlite, redis, file)", c.Backend),
		})
	}

	if c.TTLHours < 1 {
		errs = append(errs, ValidationError{
			Field:   "checkpoint.ttl_hours",
			Message: "ttl must be at least 1 hour",
		})
	}
	return errs
}

func validateSigning(s *SigningConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := parseHexColor(s.StrokeColor); err != nil {
		errs = append(errs, ValidationError{
			Field:   "signing.stroke_color",
			Message: err.Error(),
		})
	}
	if s.StrokeWidth <= 0 || s.StrokeWidth > 20 {
		errs = append(errs, *RangeError("signing.stroke_width", "0 (exclusive)", 20))
	}
	if s.PadWidth < 100 || s.PadWidth > 2000 {
		errs = append(errs, *RangeError("signing.pad_width", 100, 2000))
	}
	if s.PadHeight < 50 || s.PadHeight > 1000 {
		errs = append(errs, *RangeError("signing.pad_height", 50, 1000))
	}
	if s.ActiveSectionThreshold < 0 {
		errs = append(errs, ValidationError{
			Field:   "signing.active_section_threshold",
			Message: "threshold cannot be negative",
		})
	}
	if s.ScrollOffset < 0 {
		errs = append(errs, ValidationError{
			Field:   "signing.scroll_offset",
			Message: "offset cannot be negative",
		})
	}
	if s.AutoDate {
		if s.DateFormat == "" {
			errs = append(errs, *RequiredFieldError("signing.date_format"))
		} else if ref := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC); ref.Format(s.DateFormat) == s.DateFormat {
			errs = append(errs, ValidationError{
				Field:   "signing.date_format",
				Message: fmt.Sprintf("%q contains no date fields", s.DateFormat),
			})
		}
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}
	return errs
}

func validateGUI(g *GUIConfig) ValidationErrors {
	var errs ValidationErrors
	if g.Width < 480 {
		errs = append(errs, ValidationError{Field: "gui.width", Message: "width must be at least 480"})
	}
	if g.Height < 480 {
		errs = append(errs, ValidationError{Field: "gui.height", Message: "height must be at least 480"})
	}
	return errs
}

func validateDevServer(d *DevServerConfig) ValidationErrors {
	if _, _, err := net.SplitHostPort(d.Addr); err != nil {
		return ValidationErrors{{
			Field:   "dev_server.addr",
			Message: fmt.Sprintf("invalid address %q: want host:port", d.Addr),
		}}
	}
	return nil
}

// Helper functions

func isValidURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
