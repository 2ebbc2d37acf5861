// Package fallback implements the local append-only signup store used when
// the primary store is unavailable or unprovisioned.
package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/torqlist/leadgate/internal/signup"
)

// Store appends signup records to a single JSON file. The whole file is
// read, appended to, and rewritten on every write; writes are serialized
// within one process by a mutex. Concurrent processes can race, which is
// an accepted limitation. The file grows unbounded: no compaction, no
// retention.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a fallback store backed by the file at path, creating parent
// directories as needed.
func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("fallback path is required")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create fallback dir: %w", err)
		}
	}
	return &Store{path: path}, nil
}

// Insert appends a record to the backing file. The context is accepted for
// interface parity; file I/O here is not cancelable.
func (s *Store) Insert(_ context.Context, rec signup.Record) (signup.Stored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked()
	if err != nil {
		return signup.Stored{}, err
	}
	stored := signup.Stored{ID: uuid.NewString(), Record: rec}
	records = append(records, stored)
	if err := s.writeLocked(records); err != nil {
		return signup.Stored{}, err
	}
	return stored, nil
}

// FindByEmail scans the file for a record with the given normalized email.
func (s *Store) FindByEmail(_ context.Context, email string) (*signup.Stored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Email == email {
			return &records[i], nil
		}
	}
	return nil, nil
}

// ReadAll returns every record in append order.
func (s *Store) ReadAll() ([]signup.Stored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *Store) readLocked() ([]signup.Stored, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read fallback file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []signup.Stored
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode fallback file: %w", err)
	}
	return records, nil
}

func (s *Store) writeLocked(records []signup.Stored) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fallback records: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write fallback file: %w", err)
	}
	return nil
}
