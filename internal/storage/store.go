package storage

import (
	"encoding/json"
	"fmt"
)

// Well known keys of the persisted plugin state.
const (
	KeyNetwork  = "network"
	KeyAccounts = "accounts"
)

// Store is the persisted state of the plugin, keyed by string. Only one
// request runs at a time, so implementations need not order concurrent
// writers beyond keeping each call atomic.
type Store interface {
	// Get returns the value stored under key, or nil if there is none.
	Get(key string) ([]byte, error)
	// Put stores value under key, replacing any previous value.
	Put(key string, value []byte) error
}

// GetJSON decodes the value under key into v. It reports false and leaves v
// untouched if the key is absent.
func GetJSON(s Store, key string, v any) (bool, error) {
	raw, err := s.Get(key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v and stores it under key.
func PutJSON(s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Put(key, raw); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
