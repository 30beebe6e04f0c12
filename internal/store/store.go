// Package store implements the append-only artifact store shared between
// pipeline stages. Entries are immutable once written and identified by a
// flat, slash-separated key namespace; each writer owns a disjoint key
// prefix by construction, so the store needs no locks beyond what each
// backend requires internally.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrKeyExists is returned by Put when the key has already been written.
// No stage may overwrite another stage's artifact.
var ErrKeyExists = errors.New("store: key already exists")

// ErrNotFound is returned by Get for keys that were never written.
var ErrNotFound = errors.New("store: key not found")

// Store is a run-scoped, append-only blob area keyed by relative path.
type Store interface {
	// Put writes a new entry. It fails with ErrKeyExists if the key is taken.
	Put(ctx context.Context, key string, r io.Reader) error
	// Get opens an entry for reading. It fails with ErrNotFound for
	// unknown keys.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Has reports whether an entry exists.
	Has(ctx context.Context, key string) (bool, error)
	// Keys lists all entry keys in lexical order.
	Keys(ctx context.Context) ([]string, error)
}

// ValidateKey rejects keys that would escape the store's namespace.
func ValidateKey(key string) error {
	if key == "" {
		return errors.New("store: empty key")
	}
	if strings.HasPrefix(key, "/") || key != filepath.ToSlash(filepath.Clean(key)) || strings.HasPrefix(key, "..") {
		return fmt.Errorf("store: invalid key %q", key)
	}
	return nil
}

// PutBytes writes data under key.
func PutBytes(ctx context.Context, s Store, key string, data []byte) error {
	return s.Put(ctx, key, bytes.NewReader(data))
}

// GetBytes reads the full entry under key.
func GetBytes(ctx context.Context, s Store, key string) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// PutFile writes the local file at path under key.
func PutFile(ctx context.Context, s Store, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("store: opening %q: %w", path, err)
	}
	defer f.Close()
	return s.Put(ctx, key, f)
}

// DownloadAll materializes every entry into dir, preserving the key layout,
// and returns the written local paths keyed by store key. Stages use this to
// stage artifacts for external tools that only speak the filesystem.
func DownloadAll(ctx context.Context, s Store, dir string) (map[string]string, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	local := make(map[string]string, len(keys))
	for _, key := range keys {
		dest := filepath.Join(dir, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, err
		}
		rc, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			rc.Close()
			return nil, err
		}
		_, err = io.Copy(f, rc)
		rc.Close()
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("store: downloading %q: %w", key, err)
		}
		local[key] = dest
	}
	return local, nil
}
