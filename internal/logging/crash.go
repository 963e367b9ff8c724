package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp    time.Time      `json:"timestamp"`
	Version      string         `json:"version"`
	GOOS         string         `json:"goos"`
	GOARCH       string         `json:"goarch"`
	NumGoroutine int            `json:"num_goroutine"`
	PanicValue   string         `json:"panic_value"`
	StackTrace   string         `json:"stack_trace"`
	Component    string         `json:"component,omitempty"`
	SessionRef   string         `json:"session_ref,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// CrashHandler recovers panics in UI and network goroutines and writes a
// JSON report per crash.
type CrashHandler struct {
	mu         sync.Mutex
	dir        string
	version    string
	component  string
	sessionRef string
	logger     *Logger
	onCrash    func(CrashReport)
}

// CrashHandlerConfig configures the crash handler.
type CrashHandlerConfig struct {
	// Dir is where crash reports are written.
	Dir string

	// Version is the application version.
	Version string

	// Component is the component name.
	Component string

	// Logger receives a one-line summary of every crash.
	Logger *Logger

	// OnCrash is called after a crash is recorded, e.g. to show an error.
	OnCrash func(CrashReport)
}

// DefaultCrashDir returns the platform-specific crash directory.
func DefaultCrashDir() string {
	return filepath.Join(StateDir(), "crashes")
}

// NewCrashHandler creates a CrashHandler.
func NewCrashHandler(cfg *CrashHandlerConfig) *CrashHandler {
	if cfg == nil {
		cfg = &CrashHandlerConfig{}
	}
	if cfg.Dir == "" {
		cfg.Dir = DefaultCrashDir()
	}
	return &CrashHandler{
		dir:       cfg.Dir,
		version:   cfg.Version,
		component: cfg.Component,
		logger:    cfg.Logger,
		onCrash:   cfg.OnCrash,
	}
}

// SetSession tags later reports with the session reference for token.
func (h *CrashHandler) SetSession(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessionRef = Ref(token)
}

// Go runs fn on a new goroutine with panic recovery.
func (h *CrashHandler) Go(name string, fn func()) {
	go func() {
		defer h.recover(map[string]any{"goroutine": name})
		fn()
	}()
}

// Recover runs fn and turns a panic into a crash report.
func (h *CrashHandler) Recover(fn func()) {
	defer h.recover(nil)
	fn()
}

func (h *CrashHandler) recover(ctx map[string]any) {
	if r := recover(); r != nil {
		h.HandlePanic(r, ctx)
	}
}

// HandlePanic records a panic value and returns the report.
func (h *CrashHandler) HandlePanic(value any, ctx map[string]any) CrashReport {
	h.mu.Lock()
	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", value),
		StackTrace:   string(debug.Stack()),
		Component:    h.component,
		SessionRef:   h.sessionRef,
		Context:      ctx,
	}
	path, err := h.write(report)
	onCrash := h.onCrash
	h.mu.Unlock()

	if h.logger != nil {
		if err != nil {
			h.logger.Error("panic recovered", "panic", report.PanicValue, "write_error", err)
		} else {
			h.logger.Error("panic recovered", "panic", report.PanicValue, "report", path)
		}
	}
	if onCrash != nil {
		onCrash(report)
	}
	return report
}

func (h *CrashHandler) write(report CrashReport) (string, error) {
	if err := os.MkdirAll(h.dir, 0750); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}
	name := fmt.Sprintf("crash-%s-%s.json", report.Component, report.Timestamp.Format("20060102-150405.000000"))
	path := filepath.Join(h.dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// Reports reads back stored crash reports.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}
	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Prune removes reports older than maxAge.
func (h *CrashHandler) Prune(maxAge time.Duration) error {
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		if info, err := os.Stat(file); err == nil && info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
