package checkpoint

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/blake2b"
)

// DefaultTTL is how long an unsubmitted checkpoint stays resumable.
const DefaultTTL = 72 * time.Hour

const envelopeVersion = 1

// envelope is the sealed on-store format.
type envelope struct {
	Version   int             `json:"version"`
	SavedAt   int64           `json:"saved_at"`
	ExpiresAt int64           `json:"expires_at"`
	Payload   json.RawMessage `json:"payload"`
	Digest    string          `json:"digest"`
}

// digest hashes the canonical JSON form of everything but the digest itself.
func (e *envelope) digest() (string, error) {
	body, err := json.Marshal(struct {
		Version   int             `json:"version"`
		SavedAt   int64           `json:"saved_at"`
		ExpiresAt int64           `json:"expires_at"`
		Payload   json.RawMessage `json:"payload"`
	}{e.Version, e.SavedAt, e.ExpiresAt, e.Payload})
	if err != nil {
		return "", err
	}
	canon, err := jcs.Transform(body)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Journal stores per-token snapshots in a Store.
type Journal struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithClock overrides the time source.
func WithClock(now func() time.Time) JournalOption {
	return func(j *Journal) { j.now = now }
}

// NewJournal wraps store. A ttl of zero or less uses DefaultTTL.
func NewJournal(store Store, ttl time.Duration, opts ...JournalOption) *Journal {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	j := &Journal{store: store, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Key derives the storage key for a signing token. Tokens are bearer
// secrets, so only their hash is ever written to a backend.
func Key(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return "ckpt_" + hex.EncodeToString(sum[:16])
}

// Save seals v and writes it under token.
func (j *Journal) Save(ctx context.Context, token string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	now := j.now()
	env := envelope{
		Version:   envelopeVersion,
		SavedAt:   now.UnixMilli(),
		ExpiresAt: now.Add(j.ttl).UnixMilli(),
		Payload:   payload,
	}
	if env.Digest, err = env.digest(); err != nil {
		return fmt.Errorf("digest checkpoint: %w", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := j.store.Set(ctx, Key(token), data, j.ttl); err != nil {
		return fmt.Errorf("store checkpoint: %w", err)
	}
	return nil
}

// Load reads the checkpoint for token into v and returns when it was saved.
// Expired or damaged checkpoints are deleted and reported as ErrExpired or
// ErrCorrupt.
func (j *Journal) Load(ctx context.Context, token string, v any) (time.Time, error) {
	key := Key(token)
	data, err := j.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("read checkpoint: %w", err)
	}

	savedAt, err := j.open(data, v)
	if err != nil {
		_ = j.store.Clear(ctx, key)
		return time.Time{}, err
	}
	return savedAt, nil
}

func (j *Journal) open(data []byte, v any) (time.Time, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Version != envelopeVersion {
		return time.Time{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, env.Version)
	}
	want, err := env.digest()
	if err != nil || want != env.Digest {
		return time.Time{}, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}
	if !j.now().Before(time.UnixMilli(env.ExpiresAt)) {
		return time.Time{}, ErrExpired
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return time.UnixMilli(env.SavedAt), nil
}

// Clear deletes the checkpoint for token.
func (j *Journal) Clear(ctx context.Context, token string) error {
	if err := j.store.Clear(ctx, Key(token)); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// TTL is the expiry applied to new checkpoints.
func (j *Journal) TTL() time.Duration { return j.ttl }
