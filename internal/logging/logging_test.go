package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"ERROR", LevelError, false},
		{"invalid", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("expected json, got %v (%v)", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("expected text default, got %v (%v)", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestLevelString(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(level))
		if err != nil || parsed != level {
			t.Errorf("round trip of %v failed: %v %v", level, parsed, err)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if cfg.Component != "leasesign" {
		t.Errorf("expected component leasesign, got %s", cfg.Component)
	}
	if !strings.HasSuffix(cfg.FilePath, "leasesign.log") {
		t.Errorf("unexpected log path %s", cfg.FilePath)
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	cfg.RedactKeys = []string{"landlord"}
	logger := NewWithWriter(&buf, cfg)

	logger.Info("submit",
		"token", "tok-abc",
		"signer_email", "jordan@example.com",
		"idempotency_key", "k1",
		"landlord_id", "L-9",
		"preview", "data:image/png;base64,AAAA",
		"field_id", "tenant-signature-date",
		"fields", 3,
	)

	out := buf.String()
	for _, leaked := range []string{"tok-abc", "jordan@example.com", "L-9", "AAAA"} {
		if strings.Contains(out, leaked) {
			t.Errorf("%q leaked into log output: %s", leaked, out)
		}
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["token"] != redacted {
		t.Errorf("token not redacted: %v", entry["token"])
	}
	if entry["preview"] != "[DATA URL 26 bytes]" {
		t.Errorf("data URL not summarised: %v", entry["preview"])
	}
	if entry["fields"] != float64(3) {
		t.Errorf("non-sensitive value altered: %v", entry["fields"])
	}
	if entry["component"] != "leasesign" {
		t.Errorf("missing component: %v", entry["component"])
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"token", true},
		{"BEARER", true},
		{"signature_image", true},
		{"initials", true},
		{"email", true},
		{"password", true},
		{"step", false},
		{"fields", false},
		{"status", false},
		{"session_ref", false},
	}
	for _, test := range tests {
		if got := shouldRedact(test.key, nil); got != test.expected {
			t.Errorf("shouldRedact(%q) = %v, want %v", test.key, got, test.expected)
		}
	}
}

func TestRef(t *testing.T) {
	a, b := Ref("token-a"), Ref("token-b")
	if a == b {
		t.Error("different tokens share a ref")
	}
	if a != Ref("token-a") {
		t.Error("ref is not stable")
	}
	if !strings.HasPrefix(a, "s_") || len(a) != 14 {
		t.Errorf("unexpected ref format %q", a)
	}
	if strings.Contains(a, "token") {
		t.Error("ref leaks the token")
	}
	if Ref("") != "" {
		t.Error("empty token should have empty ref")
	}
}

func TestWithSessionAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	logger := NewWithWriter(&buf, cfg)

	ctx := ContextWithRequestID(context.Background(), "req-42")
	logger.WithSession("tok").WithContext(ctx).Info("loaded")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["session_ref"] != Ref("tok") {
		t.Errorf("expected session_ref, got %v", entry["session_ref"])
	}
	if entry["request_id"] != "req-42" {
		t.Errorf("expected request_id, got %v", entry["request_id"])
	}
}

func TestRequestIDFromContext(t *testing.T) {
	if RequestIDFromContext(nil) != "" { //nolint:staticcheck
		t.Error("expected empty id for nil context")
	}
	if RequestIDFromContext(context.Background()) != "" {
		t.Error("expected empty id for empty context")
	}
}

func TestNewRequestID(t *testing.T) {
	logger := NewWithWriter(&bytes.Buffer{}, DefaultConfig())
	child := logger.WithComponent("gateway")

	ids := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := logger.NewRequestID()
		if ids[id] {
			t.Fatalf("duplicate request id %s", id)
		}
		ids[id] = true
	}
	if ids[child.NewRequestID()] {
		t.Error("derived logger reused a request id")
	}
}

func TestLoggerFileOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = filepath.Join(t.TempDir(), "logs", "leasesign.log")

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("hello", "step", "review")
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "step=review") {
		t.Errorf("unexpected log content: %s", data)
	}
}

func TestFileRotatorRotation(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRotator(RotationConfig{
		Path:       filepath.Join(dir, "test.log"),
		MaxSizeMB:  1,
		MaxBackups: 2,
	})
	if err != nil {
		t.Fatalf("NewFileRotator failed: %v", err)
	}

	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	line := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 5; i++ {
		if _, err := r.Write(line); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		now = now.Add(time.Second)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	files, err := r.Files()
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	// current + at most MaxBackups rotated files
	if len(files) > 3 {
		t.Errorf("expected at most 3 files, got %d: %v", len(files), files)
	}
	if len(files) < 2 {
		t.Errorf("expected rotation to happen, got %v", files)
	}
}

func TestFileRotatorDailyRotation(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRotator(RotationConfig{Path: filepath.Join(dir, "day.log"), MaxSizeMB: 10})
	if err != nil {
		t.Fatalf("NewFileRotator failed: %v", err)
	}
	now := time.Date(2026, 10, 17, 23, 59, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	r.openedAt = now

	r.Write([]byte("before midnight\n"))
	now = now.Add(2 * time.Minute)
	r.Write([]byte("after midnight\n"))
	r.Close()

	files, _ := r.Files()
	if len(files) != 2 {
		t.Errorf("expected a daily rotation, got %v", files)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "day.log"))
	if string(data) != "after midnight\n" {
		t.Errorf("unexpected current file: %q", data)
	}
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditWriter(&buf, "leasesign")
	audit.SetSession("secret-token")
	ctx := ContextWithRequestID(context.Background(), "req-1")

	audit.LogSessionLoaded(ctx, 5, 4, false)
	audit.LogFieldCompleted(ctx, "tenant-signature", "signature")
	audit.LogStepChanged(ctx, "sign", "confirm")
	audit.LogSubmissionFailed(ctx, 502, 1, errors.New("bad gateway"))
	audit.LogSubmitted(ctx, 2)
	audit.LogCheckpointCleared(ctx, "submitted")

	if strings.Contains(buf.String(), "secret-token") {
		t.Fatal("audit trail contains the signing token")
	}

	var events []AuditEvent
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var e AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("invalid audit line: %v", err)
		}
		events = append(events, e)
	}
	if len(events) != 6 {
		t.Fatalf("expected 6 events, got %d", len(events))
	}

	want := []AuditEventType{
		AuditEventSessionLoaded, AuditEventFieldCompleted, AuditEventStepChanged,
		AuditEventSubmissionFailed, AuditEventSubmitted, AuditEventCheckpointCleared,
	}
	for i, e := range events {
		if e.EventType != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], e.EventType)
		}
		if e.SessionRef != Ref("secret-token") {
			t.Errorf("event %d: missing session ref", i)
		}
		if e.RequestID != "req-1" {
			t.Errorf("event %d: missing request id", i)
		}
	}
	if events[3].Result != "failure" || events[3].Error != "bad gateway" {
		t.Errorf("unexpected failure event: %+v", events[3])
	}
	if events[4].Result != "success" {
		t.Errorf("expected success, got %s", events[4].Result)
	}
}

func TestNilAuditLogger(t *testing.T) {
	var audit *AuditLogger
	audit.SetSession("tok")
	if err := audit.LogSubmitted(context.Background(), 1); err != nil {
		t.Errorf("nil audit logger returned %v", err)
	}
	if err := audit.Close(); err != nil {
		t.Errorf("nil Close returned %v", err)
	}
}

func TestAuditLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	cfg := DefaultAuditConfig()
	cfg.FilePath = path

	audit, err := NewAuditLogger(cfg)
	if err != nil {
		t.Fatalf("NewAuditLogger failed: %v", err)
	}
	audit.LogConfigChange(context.Background(), "service.base_url", "a", "b")
	audit.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(data), `"event_type":"config_change"`) {
		t.Errorf("unexpected audit content: %s", data)
	}
}

func TestCrashHandler(t *testing.T) {
	dir := t.TempDir()
	var got CrashReport
	h := NewCrashHandler(&CrashHandlerConfig{
		Dir:       dir,
		Version:   "1.0.0",
		Component: "leasesign-gui",
		OnCrash:   func(r CrashReport) { got = r },
	})
	h.SetSession("tok")

	h.Recover(func() { panic("pad exploded") })

	if got.PanicValue != "pad exploded" {
		t.Errorf("unexpected panic value %q", got.PanicValue)
	}
	if got.SessionRef != Ref("tok") {
		t.Errorf("missing session ref")
	}
	if !strings.Contains(got.StackTrace, "goroutine") {
		t.Error("missing stack trace")
	}

	reports, err := h.Reports()
	if err != nil {
		t.Fatalf("Reports failed: %v", err)
	}
	if len(reports) != 1 || reports[0].Version != "1.0.0" {
		t.Fatalf("unexpected reports: %+v", reports)
	}

	if err := h.Prune(time.Hour); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if reports, _ := h.Reports(); len(reports) != 1 {
		t.Error("fresh report should survive pruning")
	}
	if err := h.Prune(-time.Hour); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if reports, _ := h.Reports(); len(reports) != 0 {
		t.Error("expected all reports pruned")
	}
}

func TestCrashHandlerGo(t *testing.T) {
	done := make(chan CrashReport, 1)
	h := NewCrashHandler(&CrashHandlerConfig{
		Dir:     t.TempDir(),
		OnCrash: func(r CrashReport) { done <- r },
	})
	h.Go("submit", func() { panic(errors.New("boom")) })

	select {
	case r := <-done:
		if r.Context["goroutine"] != "submit" {
			t.Errorf("missing goroutine name: %v", r.Context)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("panic was not recovered")
	}
}
