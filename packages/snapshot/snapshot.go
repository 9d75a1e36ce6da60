// Package snapshot keeps the current and previous copy of the canonical
// request and response bodies.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/abdul-hamid-achik/riskproxy/packages/core/fsutil"
)

// Kind selects the request or response snapshot pair.
type Kind string

const (
	Requests  Kind = "requests"
	Responses Kind = "responses"
)

const (
	currentFile  = "current.txt"
	previousFile = "previous.txt"
	filePerm     = 0o644
)

// CurrentPath returns the path of the newest snapshot of kind under dir.
func CurrentPath(dir string, kind Kind) string {
	return filepath.Join(dir, string(kind), currentFile)
}

// PreviousPath returns the path of the snapshot replaced by the newest one.
func PreviousPath(dir string, kind Kind) string {
	return filepath.Join(dir, string(kind), previousFile)
}

// Recorder rotates current → previous and writes the new body as current.
type Recorder struct {
	dir string
	mu  sync.Locker
}

// Option is a functional option for Recorder
type Option func(*Recorder)

// WithLocker makes the recorder share a lock with another component.
func WithLocker(l sync.Locker) Option {
	return func(r *Recorder) {
		if l != nil {
			r.mu = l
		}
	}
}

// NewRecorder creates a recorder rooted at dir.
func NewRecorder(dir string, opts ...Option) *Recorder {
	r := &Recorder{
		dir: dir,
		mu:  &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the snapshot root.
func (r *Recorder) Dir() string {
	return r.dir
}

// RecordRequest stores body as the current canonical request.
func (r *Recorder) RecordRequest(body []byte) error {
	return r.record(Requests, body)
}

// RecordResponse stores body as the current canonical response.
func (r *Recorder) RecordResponse(body []byte) error {
	return r.record(Responses, body)
}

func (r *Recorder) record(kind Kind, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(r.dir, string(kind)), 0o755); err != nil {
		return fmt.Errorf("creating %s snapshot dir: %w", kind, err)
	}

	current := CurrentPath(r.dir, kind)
	if err := os.Rename(current, PreviousPath(r.dir, kind)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("rotating %s snapshot: %w", kind, err)
	}
	if err := fsutil.WriteFileAtomic(current, body, filePerm); err != nil {
		return fmt.Errorf("writing %s snapshot: %w", kind, err)
	}
	return nil
}
