// Package envstore holds the in-memory, process-lifetime table of
// environment variables injected into agent invocations.
package envstore

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentgate/agentgate/internal/gwerrors"
)

// maskedValue is returned in place of a sensitive value on external reads.
const maskedValue = "***HIDDEN***"

// Var is one environment variable entry.
type Var struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is a single-writer-at-a-time, snapshot-read table of env vars.
// It is volatile: nothing here survives a restart.
type Store struct {
	mu   sync.RWMutex
	vars map[string]Var
}

func New() *Store {
	return &Store{vars: make(map[string]Var)}
}

// isSensitive reports whether a key should be masked on external reads.
func isSensitive(key string) bool {
	upper := strings.ToUpper(key)
	return strings.Contains(upper, "TOKEN") || strings.Contains(upper, "KEY") || strings.Contains(upper, "SECRET")
}

func mask(v Var) Var {
	if v.Value != "" && isSensitive(v.Key) {
		v.Value = maskedValue
	}
	return v
}

// List returns all vars sorted by key, with sensitive values masked.
func (s *Store) List() []Var {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Var, 0, len(s.vars))
	for _, v := range s.vars {
		out = append(out, mask(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Get returns the masked var for key, if present.
func (s *Store) Get(key string) (Var, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[key]
	if !ok {
		return Var{}, false
	}
	return mask(v), true
}

// Set upserts key, preserving CreatedAt across updates.
func (s *Store) Set(key, value, description string) (Var, error) {
	if key == "" {
		return Var{}, gwerrors.New(gwerrors.InvalidArgument, "env key must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	v, existed := s.vars[key]
	if !existed {
		v.CreatedAt = now
	}
	v.Key = key
	v.Value = value
	v.Description = description
	v.UpdatedAt = now
	s.vars[key] = v
	return mask(v), nil
}

// Delete removes key, returning whether it existed.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vars[key]; !ok {
		return false
	}
	delete(s.vars, key)
	return true
}

// BulkSet upserts every key in kv, returning the masked results in
// arbitrary order.
func (s *Store) BulkSet(kv map[string]string) ([]Var, error) {
	out := make([]Var, 0, len(kv))
	for k, v := range kv {
		set, err := s.Set(k, v, "")
		if err != nil {
			return nil, err
		}
		out = append(out, set)
	}
	return out, nil
}

// AsRecord returns every var, unmasked, as a plain map. Internal only:
// this is the form injected into agent child processes.
func (s *Store) AsRecord() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.vars))
	for k, v := range s.vars {
		out[k] = v.Value
	}
	return out
}
