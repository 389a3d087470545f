package persist

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// File writes one <key>.json per snapshot into a directory.
type File struct {
	dir     string
	started atomic.Bool
}

func NewFile(dir string) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("file persister requires a path")
	}
	return &File{dir: dir}, nil
}

func (f *File) Start(ctx context.Context) error {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	f.started.Store(true)
	return nil
}

func (f *File) Verify(snapshot Snapshot) bool {
	return Verify(snapshot)
}

// Save writes to a temp file and renames it over the previous snapshot.
func (f *File) Save(ctx context.Context, snapshot Snapshot, key string) error {
	if !f.started.Load() {
		return ErrNotInitialized
	}
	data, err := encode(snapshot)
	if err != nil {
		return err
	}
	target, err := f.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, ".snapshot-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func (f *File) Recover(ctx context.Context, key string) (Snapshot, error) {
	if !f.started.Load() {
		return nil, ErrNotInitialized
	}
	target, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return decode(data)
}

func (f *File) path(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("snapshot key required")
	}
	return filepath.Join(f.dir, url.PathEscape(key)+".json"), nil
}
