// Package memory provides in-process implementations of the local draft store
// and the remote document store. They back tests and the "memory"
// storage driver.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
)

var (
	_ cart.LocalStore = (*KV)(nil)
	_ order.Store     = (*Documents)(nil)
)

// KV is a concurrency-safe in-memory key-value store.
type KV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewKV returns an empty KV.
func NewKV() *KV {
	return &KV{data: map[string][]byte{}}
}

// Load returns a copy of the value stored under key.
func (s *KV) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return slices.Clone(v), ok, nil
}

// Save stores a copy of value under key.
func (s *KV) Save(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = slices.Clone(value)
	return nil
}

// Documents is an in-memory JSON document store keyed by path. Put merges the
// top-level fields of the new document into the stored one.
type Documents struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewDocuments returns an empty document store.
func NewDocuments() *Documents {
	return &Documents{docs: map[string][]byte{}}
}

// Get returns a copy of the document at path.
func (s *Documents) Get(_ context.Context, path string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[path]
	return slices.Clone(doc), ok, nil
}

// Put merges doc into the document at path.
func (s *Documents) Put(_ context.Context, path string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, err := MergeTop(s.docs[path], doc)
	if err != nil {
		return errors.Wrapf(err, "put %s", path)
	}
	s.docs[path] = merged
	return nil
}

// Paths returns the stored paths in sorted order.
func (s *Documents) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.docs))
	for p := range s.docs {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// MergeTop merges the top-level fields of patch into base. Fields of patch
// replace fields of base with the same name; a null field deletes it, also
// when base is empty.
func MergeTop(base, patch []byte) ([]byte, error) {
	if !jx.Valid(patch) || jx.DecodeBytes(patch).Next() != jx.Object {
		return nil, errors.New("document must be a JSON object")
	}

	fields := map[string]jx.Raw{}
	var keys []string
	collect := func(data []byte) error {
		return jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			if _, ok := fields[key]; !ok {
				keys = append(keys, key)
			}
			fields[key] = slices.Clone(raw)
			return nil
		})
	}
	if len(base) > 0 {
		if err := collect(base); err != nil {
			return nil, errors.Wrap(err, "decode stored document")
		}
	}
	if err := collect(patch); err != nil {
		return nil, errors.Wrap(err, "decode document")
	}

	var e jx.Encoder
	e.ObjStart()
	for _, k := range keys {
		raw := fields[k]
		if raw.Type() == jx.Null {
			continue
		}
		e.FieldStart(k)
		e.Raw(raw)
	}
	e.ObjEnd()
	return e.Bytes(), nil
}
