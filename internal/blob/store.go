package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/pebble/v2"
)

var ErrNotFound = errors.New("blob not found")

const servePrefix = "/blobs/"

// Store is the named-blob collaborator: upload bytes under a destination
// path, resolve a path to a retrievable URL, delete, and list by directory
// prefix.
type Store interface {
	Upload(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	URL(ctx context.Context, path string) (string, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, dir string) ([]string, error)
	Close() error
}

// PebbleStore keeps blob bytes in a Pebble key-value store, one key per
// blob path.
type PebbleStore struct {
	db *pebble.DB
}

// Open opens (or creates) the store at dir.
func Open(dir string) (*PebbleStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Upload stores data under path, overwriting any previous blob.
func (s *PebbleStore) Upload(ctx context.Context, path string, data []byte) error {
	if path == "" {
		return errors.New("empty blob path")
	}
	return s.db.Set([]byte(path), data, pebble.Sync)
}

// Get returns the stored bytes for path.
func (s *PebbleStore) Get(ctx context.Context, path string) ([]byte, error) {
	val, closer, err := s.db.Get([]byte(path))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

// URL resolves a blob path to the URL it is served under. The blob must
// exist.
func (s *PebbleStore) URL(ctx context.Context, path string) (string, error) {
	_, closer, err := s.db.Get([]byte(path))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	_ = closer.Close()
	return servePrefix + path, nil
}

// Delete removes the blob at path.
func (s *PebbleStore) Delete(ctx context.Context, path string) error {
	if _, err := s.Get(ctx, path); err != nil {
		return err
	}
	return s.db.Delete([]byte(path), pebble.Sync)
}

// List returns all blob paths under the directory prefix.
func (s *PebbleStore) List(ctx context.Context, dir string) ([]string, error) {
	if dir != "" && !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	lower := []byte(dir)
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixUpperBound(lower),
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var paths []string
	for it.First(); it.Valid(); it.Next() {
		paths = append(paths, string(it.Key()))
	}
	return paths, it.Error()
}

// Close closes the underlying database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func prefixUpperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
