// Package local implements the durable local key-value store: every key is
// kept in a single gzip-compressed JSON file that is rewritten atomically on
// each Save.
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
)

var (
	_ cart.LocalStore = (*FileStore)(nil)
	_ catalog.Store   = (*FileStore)(nil)
)

// FileStore is a key-value store persisted to one file. Values are stored as
// JSON strings, so they must be text.
type FileStore struct {
	path string

	mu   sync.Mutex
	data map[string][]byte
}

// Open loads the store at path. A missing file is an empty store; its
// directory is created on first Save.
func Open(path string) (*FileStore, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{path: path, data: data}, nil
}

// Path returns the file backing the store.
func (s *FileStore) Path() string { return s.path }

// Load returns the value stored under key.
func (s *FileStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return slices.Clone(v), ok, nil
}

// Save stores value under key and rewrites the file before returning. On
// error the previous value is kept.
func (s *FileStore) Save(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.data[key]
	s.data[key] = slices.Clone(value)
	if err := s.flush(); err != nil {
		if had {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *FileStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Check verifies that the file on disk is readable and decodes.
func (s *FileStore) Check(context.Context) error {
	_, err := readFile(s.path)
	return err
}

func (s *FileStore) flush() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := writeTo(tmp, s.data); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "write %s", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrapf(err, "replace %s", s.path)
	}
	return nil
}

func writeTo(w io.Writer, data map[string][]byte) error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var e jx.Encoder
	e.ObjStart()
	for _, k := range keys {
		e.FieldStart(k)
		e.Str(string(data[k]))
	}
	e.ObjEnd()

	gz := pgzip.NewWriter(w)
	if _, err := gz.Write(e.Bytes()); err != nil {
		_ = gz.Close()
		return err
	}
	return gz.Close()
}

func readFile(path string) (map[string][]byte, error) {
	data := map[string][]byte{}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}

	if err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		v, err := d.Str()
		if err != nil {
			return err
		}
		data[key] = []byte(v)
		return nil
	}); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return data, nil
}
