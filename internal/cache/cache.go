// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sync"
)

var (
	// ErrNotFound is returned by Get when no entry is stored for a key.
	ErrNotFound = errors.New("cache entry not found")
	// ErrInvalidKey is the sentinel error wrapped by InvalidKeyError.
	ErrInvalidKey = errors.New("invalid cache key")

	validKey = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

type (
	// Store is a byte oriented key-value cache.
	Store interface {
		// Get returns the entry for key or ErrNotFound.
		Get(key string) ([]byte, error)
		Set(key string, value []byte) error
		Has(key string) (bool, error)
		// Delete removes the entry for key. Deleting a missing key is not an
		// error.
		Delete(key string) error
		// Clear removes every entry.
		Clear() error
	}

	// Memory is a Store kept in process memory. It is safe for concurrent
	// use.
	Memory struct {
		mu      sync.RWMutex
		entries map[string][]byte
	}

	// InvalidKeyError is returned for keys that cannot be used as file names.
	InvalidKeyError struct {
		Key string
	}
)

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

// Error implements the error interface for InvalidKeyError.
func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid cache key %q: keys must start with a letter or digit and contain only letters, digits, '.', '_' and '-'", e.Key)
}

// Unwrap returns ErrInvalidKey for errors.Is() compatibility.
func (e *InvalidKeyError) Unwrap() error { return ErrInvalidKey }

// ValidateKey reports an *InvalidKeyError for keys a Store does not accept.
func ValidateKey(key string) error {
	if !validKey.MatchString(key) {
		return &InvalidKeyError{Key: key}
	}
	return nil
}

// Get implements Store.
func (m *Memory) Get(key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

// Set implements Store.
func (m *Memory) Set(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = slices.Clone(value)
	return nil
}

// Has implements Store.
func (m *Memory) Has(key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entries[key]
	return ok, nil
}

// Delete implements Store.
func (m *Memory) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Clear implements Store.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.entries)
	return nil
}
