// Package modelstate persists the currently selected chat model (C9) across
// restarts. Writes are atomic (write-to-temp + rename) and verified by
// reading the value back twice: once from the just-written temp file and
// once more after the rename lands.
package modelstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultModel is used whenever no state file exists or it cannot be
// parsed (§4.9).
const DefaultModel = "llama3.1"

type document struct {
	Model string `json:"model"`
}

// Store tracks the active model name, backed by a single JSON file.
type Store struct {
	path string

	mu      sync.Mutex
	current string
}

// Open loads the persisted model from path, defaulting to DefaultModel on
// any read or parse error (missing file, corrupt JSON, empty value).
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create model state directory: %w", err)
	}

	s := &Store{path: path}
	s.current = s.load()
	return s, nil
}

// Get returns the current model name. Safe for concurrent use: it takes mu,
// so it observes either the prior or the newly Set value. Reads are not
// lock-free; a Get waits while a Set holds mu.
func (s *Store) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set persists model as the active selection. The write is atomic (temp
// file + rename) and verified twice: immediately after writing, and again
// by reloading through load() as an independent reader would. If either
// check fails, Set returns a descriptive error but still leaves model as
// the in-memory current value, since the caller's intent was honored even
// if durability could not be confirmed.
func (s *Store) Set(model string) error {
	if model == "" {
		return fmt.Errorf("model name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(document{Model: model}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write model state: %w", err)
	}

	// The caller's intent is honored from here on: every check below is a
	// durability verification, not a precondition, so any failure past this
	// point must still leave the in-memory value at model (§4.9 step d).
	s.current = model

	written, err := readModel(tmp)
	if err != nil || written != model {
		os.Remove(tmp)
		return fmt.Errorf("verify staged model state: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit model state: %w", err)
	}

	reloaded := s.load()
	if reloaded != model {
		return fmt.Errorf("model state did not survive reload: wrote %q, reloaded %q", model, reloaded)
	}

	return nil
}

// load reads the state file, returning DefaultModel on any failure.
func (s *Store) load() string {
	model, err := readModel(s.path)
	if err != nil || model == "" {
		return DefaultModel
	}
	return model
}

// ReadPersisted re-reads and unmarshals the on-disk state file independent
// of the in-memory current value, so callers (e.g. /api/status) can detect
// a real mismatch between what is cached in memory and what is actually
// durable, per §4.10's status contract and C9's triple-verification
// rationale (§4.9).
func (s *Store) ReadPersisted() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readModel(s.path)
}

func readModel(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", err
	}
	return doc.Model, nil
}
