package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type progress struct {
	Step   string            `json:"step"`
	Values map[string]string `json:"values"`
}

// exerciseStore runs the Store contract against one backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "ckpt_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: expected ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, "ckpt_a", []byte("one"), time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Get(ctx, "ckpt_a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "one" {
		t.Errorf("expected %q, got %q", "one", got)
	}

	if err := s.Set(ctx, "ckpt_a", []byte("two"), time.Hour); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	got, _ = s.Get(ctx, "ckpt_a")
	if string(got) != "two" {
		t.Errorf("overwrite: expected %q, got %q", "two", got)
	}

	if err := s.Clear(ctx, "ckpt_a"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := s.Get(ctx, "ckpt_a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after Clear: expected ErrNotFound, got %v", err)
	}
	if err := s.Clear(ctx, "ckpt_a"); err != nil {
		t.Errorf("clearing a missing key should succeed: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewMemoryStore()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"), time.Minute)
	if _, err := m.Get(ctx, "k"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}
	now = now.Add(time.Minute)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected expired entry to be gone, got %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "checkpoints.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStorePurge(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer s.Close()

	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	s.Set(ctx, "short", []byte("x"), time.Second)
	s.Set(ctx, "long", []byte("y"), time.Hour)
	s.Set(ctx, "forever", []byte("z"), 0)

	now = now.Add(time.Minute)
	if _, err := s.Get(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired row should be invisible, got %v", err)
	}
	n, err := s.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged row, got %d", n)
	}
	for _, key := range []string{"long", "forever"} {
		if _, err := s.Get(ctx, key); err != nil {
			t.Errorf("%s should survive purge: %v", key, err)
		}
	}
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ckpt")
	s, err := OpenFileStore(dir)
	if err != nil {
		t.Fatalf("OpenFileStore failed: %v", err)
	}
	exerciseStore(t, s)

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStoreRejectsPathKeys(t *testing.T) {
	s, err := OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenFileStore failed: %v", err)
	}
	for _, key := range []string{"", "../escape", "a/b", ".lock"} {
		if err := s.Set(context.Background(), key, []byte("x"), 0); err == nil {
			t.Errorf("expected error for key %q", key)
		}
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("LEASESIGN_TEST_REDIS")
	if addr == "" {
		t.Skip("LEASESIGN_TEST_REDIS not set")
	}
	s, err := OpenRedis(context.Background(), RedisOptions{Addr: addr, DB: 15})
	if err != nil {
		t.Fatalf("OpenRedis failed: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, opts := range []Options{
		{Backend: ""},
		{Backend: BackendMemory},
		{Backend: BackendSQLite, Path: filepath.Join(dir, "c.db")},
		{Backend: BackendFile, Path: filepath.Join(dir, "files")},
	} {
		s, err := Open(ctx, opts)
		if err != nil {
			t.Fatalf("Open(%q) failed: %v", opts.Backend, err)
		}
		s.Close()
	}

	if _, err := Open(ctx, Options{Backend: "etcd"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

// =============================================================================
// Journal
// =============================================================================

func TestJournalRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	j := NewJournal(store, time.Hour)
	ctx := context.Background()

	in := progress{Step: "sign", Values: map[string]string{"sig": "data:image/png;base64,AA"}}
	if err := j.Save(ctx, "tok-123", in); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var out progress
	savedAt, err := j.Load(ctx, "tok-123", &out)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if savedAt.IsZero() {
		t.Error("expected saved-at time")
	}
	if out.Step != "sign" || out.Values["sig"] != in.Values["sig"] {
		t.Errorf("round trip mismatch: %+v", out)
	}

	if _, err := j.Load(ctx, "other-token", &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for another token, got %v", err)
	}
}

func TestJournalDoesNotStoreRawToken(t *testing.T) {
	store := NewMemoryStore()
	j := NewJournal(store, 0)
	j.Save(context.Background(), "secret-token", progress{})

	for key := range store.entries {
		if strings.Contains(key, "secret-token") {
			t.Errorf("raw token leaked into key %q", key)
		}
		if key != Key("secret-token") {
			t.Errorf("unexpected key %q", key)
		}
	}
	if j.TTL() != DefaultTTL {
		t.Errorf("expected default TTL, got %v", j.TTL())
	}
}

func TestJournalExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newTestFileStore(t)
	j := NewJournal(store, time.Hour, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	j.Save(ctx, "tok", progress{Step: "confirm"})
	now = now.Add(2 * time.Hour)

	var out progress
	if _, err := j.Load(ctx, "tok", &out); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := store.Get(ctx, Key("tok")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired checkpoint should be deleted, got %v", err)
	}
}

func TestJournalDetectsTampering(t *testing.T) {
	store := NewMemoryStore()
	j := NewJournal(store, time.Hour)
	ctx := context.Background()
	j.Save(ctx, "tok", progress{Step: "sign"})

	raw, _ := store.Get(ctx, Key("tok"))
	var env map[string]any
	json.Unmarshal(raw, &env)
	env["payload"] = map[string]any{"step": "confirm"}
	tampered, _ := json.Marshal(env)
	store.Set(ctx, Key("tok"), tampered, time.Hour)

	var out progress
	if _, err := j.Load(ctx, "tok", &out); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if store.Len() != 0 {
		t.Error("corrupt checkpoint should be deleted")
	}

	store.Set(ctx, Key("tok"), []byte("not json"), time.Hour)
	if _, err := j.Load(ctx, "tok", &out); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt for garbage, got %v", err)
	}
}

func TestJournalDigestIgnoresKeyOrder(t *testing.T) {
	store := NewMemoryStore()
	j := NewJournal(store, time.Hour)
	ctx := context.Background()
	j.Save(ctx, "tok", map[string]any{"b": 1, "a": 2})

	// Re-encode the payload with a different key order and spacing; the
	// canonical form, and therefore the digest, must not change.
	raw, _ := store.Get(ctx, Key("tok"))
	var env envelope
	json.Unmarshal(raw, &env)
	env.Payload = json.RawMessage(`{ "a": 2,  "b": 1 }`)
	reordered, _ := json.Marshal(env)
	store.Set(ctx, Key("tok"), reordered, time.Hour)

	var out map[string]int
	if _, err := j.Load(ctx, "tok", &out); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if out["a"] != 2 || out["b"] != 1 {
		t.Errorf("unexpected payload %v", out)
	}
}

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenFileStore failed: %v", err)
	}
	return s
}
