package store

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends lists the store implementations exercised by the shared contract
// tests. The s3 backend needs a live endpoint and is covered separately.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFS(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, PutBytes(ctx, s, "dir/artifact.bin", []byte("payload")))

			data, err := GetBytes(ctx, s, "dir/artifact.bin")
			require.NoError(t, err)
			assert.Equal(t, []byte("payload"), data)

			exists, err := s.Has(ctx, "dir/artifact.bin")
			require.NoError(t, err)
			assert.True(t, exists)
		})
	}
}

func TestPutIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, PutBytes(ctx, s, "key", []byte("first")))

			err := PutBytes(ctx, s, "key", []byte("second"))
			assert.ErrorIs(t, err, ErrKeyExists)

			// The original entry is untouched.
			data, err := GetBytes(ctx, s, "key")
			require.NoError(t, err)
			assert.Equal(t, []byte("first"), data)
		})
	}
}

func TestGetMissingKey(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)

			exists, err := s.Has(ctx, "nope")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestKeysAreSorted(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, PutBytes(ctx, s, "b/two", []byte("2")))
			require.NoError(t, PutBytes(ctx, s, "a/one", []byte("1")))
			require.NoError(t, PutBytes(ctx, s, "c", []byte("3")))

			keys, err := s.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a/one", "b/two", "c"}, keys)
		})
	}
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"", "/abs", "../escape", "a/../b", "a/./b", "a//b"} {
		t.Run(key, func(t *testing.T) {
			assert.Error(t, ValidateKey(key), "key %q should be rejected", key)
		})
	}
	for _, key := range []string{"a", "a/b/c", "dist-manifest.json"} {
		t.Run(key, func(t *testing.T) {
			assert.NoError(t, ValidateKey(key))
		})
	}
}

func TestConcurrentDisjointWriters(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			const writers = 8
			const perWriter = 25

			var wg sync.WaitGroup
			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < perWriter; i++ {
						key := fmt.Sprintf("ns-%d/artifact-%d", w, i)
						assert.NoError(t, s.Put(ctx, key, bytes.NewReader([]byte(key))))
					}
				}(w)
			}
			wg.Wait()

			keys, err := s.Keys(ctx)
			require.NoError(t, err)
			assert.Len(t, keys, writers*perWriter)
		})
	}
}

func TestPutFile(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	src := filepath.Join(t.TempDir(), "app.tar.gz")
	require.NoError(t, os.WriteFile(src, []byte("binary"), 0o644))

	require.NoError(t, PutFile(ctx, s, "app.tar.gz", src))
	data, err := GetBytes(ctx, s, "app.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, []byte("binary"), data)
}

func TestDownloadAll(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, PutBytes(ctx, s, "a.bin", []byte("aaa")))
	require.NoError(t, PutBytes(ctx, s, "nested/b.bin", []byte("bbb")))

	dir := t.TempDir()
	local, err := DownloadAll(ctx, s, dir)
	require.NoError(t, err)
	require.Len(t, local, 2)

	data, err := os.ReadFile(local["nested/b.bin"])
	require.NoError(t, err)
	assert.Equal(t, []byte("bbb"), data)

	for _, path := range local {
		rel, err := filepath.Rel(dir, path)
		require.NoError(t, err)
		assert.False(t, filepath.IsAbs(rel))
	}
}
