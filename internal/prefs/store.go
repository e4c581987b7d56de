// Package prefs provides typed preference keys and a file-backed store for
// mutable application state: destination flags, cached Drive folder IDs, and
// backup bookkeeping. Static configuration lives in the app config instead.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is a JSON-file-backed preference store. All methods are safe for
// concurrent use. Writes persist immediately.
type Store struct {
	path string

	mu     sync.Mutex
	values map[string]any
}

// Open loads the preference store at path, creating parent directories as
// needed. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating preference directory: %w", err)
	}

	s := &Store{
		path:   path,
		values: make(map[string]any),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading preferences: %w", err)
	}

	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("parsing preferences %s: %w", path, err)
	}

	return s, nil
}

// String returns the value for key, or its default when unset.
func (s *Store) String(key StringKey) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.values[key.Name].(string); ok {
		return v
	}
	return key.Default
}

// SetString sets and persists a string preference.
func (s *Store) SetString(key StringKey, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key.Name] = value
	return s.save()
}

// Bool returns the value for key, or its default when unset.
func (s *Store) Bool(key BoolKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.values[key.Name].(bool); ok {
		return v
	}
	return key.Default
}

// SetBool sets and persists a bool preference.
func (s *Store) SetBool(key BoolKey, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key.Name] = value
	return s.save()
}

// Int returns the value for key, or its default when unset.
func (s *Store) Int(key IntKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	// JSON round-trips numbers as float64.
	if v, ok := s.values[key.Name].(float64); ok {
		return int(v)
	}
	return key.Default
}

// SetInt sets and persists an int preference.
func (s *Store) SetInt(key IntKey, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key.Name] = value
	return s.save()
}

// Delete removes a preference by name and persists.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, name)
	return s.save()
}

// save writes the store atomically with owner-only permissions. Callers must
// hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing preferences: %w", err)
	}

	return nil
}
