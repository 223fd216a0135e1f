// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Store is a string key/value tier with Web Storage semantics: missing keys
// are not an error, and Remove of an absent key succeeds.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
	Keys() []string
}

// ErrClosed is returned by writes to a store that has been closed.
var ErrClosed = errors.New("storage: store closed")

// =============================================================================
// TYPED HELPERS
// =============================================================================

// GetInt64 reads an integer value. Unparseable values are reported as absent.
func GetInt64(s Store, key string) (int64, bool) {
	raw, ok := s.Get(key)
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SetInt64 writes an integer value.
func SetInt64(s Store, key string, v int64) error {
	return s.Set(key, strconv.FormatInt(v, 10))
}

// GetJSON decodes a JSON value into v. It returns false if the key is absent
// and an error if the stored value is not valid JSON for v.
func GetJSON(s Store, key string, v any) (bool, error) {
	raw, ok := s.Get(key)
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v as JSON and stores it.
func SetJSON(s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(key, string(data))
}

// RemoveAll removes every listed key, returning the first error encountered.
// All keys are attempted regardless of earlier failures.
func RemoveAll(s Store, keys ...string) error {
	var firstErr error
	for _, k := range keys {
		if err := s.Remove(k); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
