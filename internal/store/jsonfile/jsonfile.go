// Package jsonfile implements the store contract over storage.json, a flat
// JSON document whose dotted keys are top-level properties.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/samber/lo"

	"github.com/maloquacious/telesync/internal/fields"
	"github.com/maloquacious/telesync/internal/store"
)

// MinSize is the smallest file that can hold a JSON object ("{}").
const MinSize = 2

// JSONStore implements store.Store for a storage.json file.
type JSONStore struct {
	path string
}

var _ store.Store = (*JSONStore)(nil)

// New creates a JSONStore for path.
func New(path string) *JSONStore {
	return &JSONStore{path: path}
}

func (s *JSONStore) Path() string     { return s.path }
func (s *JSONStore) Kind() store.Kind { return store.KindJSON }

// document is the parsed file; unknown properties are carried through writes untouched.
type document map[string]json.RawMessage

func (s *JSONStore) load() (document, os.FileMode, error) {
	info, err := store.CheckUsable(s.path, MinSize)
	if err != nil {
		return nil, 0, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", s.path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("parsing %s: %w: %v", s.path, store.ErrStoreCorrupt, err)
	}
	if doc == nil {
		// "null" parses cleanly but is not an object
		return nil, 0, fmt.Errorf("parsing %s: %w: not an object", s.path, store.ErrStoreCorrupt)
	}
	return doc, info.Mode().Perm(), nil
}

// Read returns the named top-level properties present in the document.
func (s *JSONStore) Read(_ context.Context, names []fields.Name) (fields.Set, error) {
	doc, _, err := s.load()
	if err != nil {
		return fields.Set{}, err
	}

	found := make(map[fields.Name]fields.Value, len(names))
	for _, n := range names {
		raw, ok := doc[n.Key()]
		if !ok {
			continue
		}
		if v, ok := decodeValue(raw); ok {
			found[n] = v
		}
	}
	return fields.NewSet(found), nil
}

func decodeValue(raw json.RawMessage) (fields.Value, bool) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return fields.String(str), true
	}
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return fields.Value{}, false
	}
	if n, err := strconv.ParseInt(string(trimmed), 10, 64); err == nil {
		return fields.Int(n), true
	}
	return fields.String(string(trimmed)), true
}

func encodeValue(v fields.Value) (json.RawMessage, error) {
	if v.IsNumeric() {
		return json.RawMessage(v.String()), nil
	}
	return json.Marshal(v.String())
}

// Upsert sets every value and rewrites the file atomically. Values that fail
// to encode are recorded and skipped; the rest are still written.
func (s *JSONStore) Upsert(_ context.Context, values fields.Set) error {
	doc, mode, err := s.load()
	if err != nil {
		return err
	}

	werr := &store.WriteError{Path: s.path}
	for _, n := range values.Names() {
		v, _ := values.Get(n)
		raw, err := encodeValue(v)
		if err != nil {
			werr.Add(n, fmt.Errorf("encoding %s: %w", n.Key(), err))
			continue
		}
		doc[n.Key()] = raw
	}

	if err := s.save(doc, mode); err != nil {
		for _, n := range values.Names() {
			werr.Add(n, err)
		}
	}
	return werr.OrNil()
}

// Purge removes every property whose key matches a pattern.
func (s *JSONStore) Purge(_ context.Context, patterns []string, protect []string, dryRun bool) (int, error) {
	if len(patterns) == 0 {
		return 0, nil
	}
	doc, mode, err := s.load()
	if err != nil {
		return 0, err
	}

	matched := lo.Filter(lo.Keys(doc), func(key string, _ int) bool {
		if lo.Contains(protect, key) {
			return false
		}
		return lo.SomeBy(patterns, func(p string) bool { return store.Like(p, key) })
	})
	if dryRun || len(matched) == 0 {
		return len(matched), nil
	}

	for _, key := range matched {
		delete(doc, key)
	}
	if err := s.save(doc, mode); err != nil {
		return 0, err
	}
	return len(matched), nil
}

// save writes doc with sorted keys and a trailing newline through a temp file
// in the same directory, then renames it over the original.
func (s *JSONStore) save(doc document, mode os.FileMode) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", s.path, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}
