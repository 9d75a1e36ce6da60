package tokens

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/riskproxy/packages/core/fsutil"
)

// Store keeps the latest value of each tracked token.
type Store struct {
	mu          sync.Locker
	set         Set
	path        string
	values      map[Name]string
	lastUpdated time.Time
	dirty       bool // a persist failed and has not been retried
	now         func() time.Time
}

// Option is a functional option for Store
type Option func(*Store)

// WithLocker shares a lock with other components writing next to the store.
func WithLocker(l sync.Locker) Option {
	return func(s *Store) {
		s.mu = l
	}
}

// WithClock overrides the time source used for last_updated.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store persisting to path.
func NewStore(path string, set Set, opts ...Option) *Store {
	s := &Store{
		mu:     &sync.Mutex{},
		set:    set,
		path:   path,
		values: make(map[Name]string),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set returns the tracked token set.
func (s *Store) Set() Set {
	return s.set
}

// Path returns the credential file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns the current value of name.
func (s *Store) Get(name Name) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}

// SetIfChanged stores value and reports whether it differs from the
// current one. Untracked names and empty values are ignored.
func (s *Store) SetIfChanged(name Name, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(name, value)
}

func (s *Store) setLocked(name Name, value string) bool {
	if value == "" || !s.set.Tracked(name) {
		return false
	}
	if current, ok := s.values[name]; ok && current == value {
		return false
	}
	s.values[name] = value
	return true
}

// Persist writes the full snapshot to disk.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// Update applies fn with a setter and persists once if any value changed,
// all under a single lock acquisition. It reports whether anything changed.
func (s *Store) Update(fn func(set func(Name, string) bool)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	fn(func(name Name, value string) bool {
		if s.setLocked(name, value) {
			changed = true
			return true
		}
		return false
	})

	if !changed && !s.dirty {
		return false, nil
	}
	return changed, s.persistLocked()
}

func (s *Store) persistLocked() error {
	s.lastUpdated = s.now()
	data, err := json.MarshalIndent(s.recordLocked(), "", "  ")
	if err != nil {
		s.dirty = true
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0600); err != nil {
		s.dirty = true
		return fmt.Errorf("persisting credentials: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *Store) recordLocked() map[string]string {
	record := make(map[string]string, len(s.values)+1)
	for k, v := range s.values {
		record[string(k)] = v
	}
	if !s.lastUpdated.IsZero() {
		record[LastUpdatedKey] = s.lastUpdated.Format(time.RFC3339Nano)
	}
	return record
}

// Snapshot returns a copy of the values and the last persist time.
func (s *Store) Snapshot() (map[Name]string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := make(map[Name]string, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	return values, s.lastUpdated
}

// Load restores a previously persisted credential file. A missing file is
// not an error. Invalid files are rejected and leave the store unchanged.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading credentials: %w", err)
	}

	if err := ValidateRecord(data); err != nil {
		return err
	}

	var record map[string]string
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("decoding credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range record {
		if k == LastUpdatedKey {
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				s.lastUpdated = t
			}
			continue
		}
		s.setLocked(Name(k), v)
	}
	return nil
}
