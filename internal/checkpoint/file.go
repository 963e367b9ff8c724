package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const fileExt = ".ckpt"

// FileStore keeps one file per key under a directory. Writes go through a
// temp file and rename; a lock file serialises access between processes
// (a GUI and a CLI pointed at the same directory).
//
// FileStore does not expire entries by itself; Journal rejects expired
// envelopes on load.
type FileStore struct {
	dir string
}

// OpenFileStore creates dir if needed.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid checkpoint key %q", key)
	}
	return filepath.Join(f.dir, key+fileExt), nil
}

func (f *FileStore) withLock(fn func() error) error {
	unlock, err := lockDir(f.dir)
	if err != nil {
		return fmt.Errorf("lock checkpoint directory: %w", err)
	}
	defer unlock()
	return fn()
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = f.withLock(func() error {
		var rerr error
		data, rerr = os.ReadFile(p)
		return rerr
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return data, nil
}

func (f *FileStore) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	return f.withLock(func() error {
		tmp, err := os.CreateTemp(f.dir, ".tmp-*")
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}
		defer os.Remove(tmp.Name())

		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return fmt.Errorf("write checkpoint: %w", err)
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return fmt.Errorf("sync checkpoint: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("close checkpoint: %w", err)
		}
		if err := os.Rename(tmp.Name(), p); err != nil {
			return fmt.Errorf("rename checkpoint: %w", err)
		}
		return nil
	})
}

func (f *FileStore) Clear(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	return f.withLock(func() error {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove checkpoint: %w", err)
		}
		return nil
	})
}

func (f *FileStore) Close() error { return nil }
