// Package lockfile serializes runs against the same ledger. The lock
// is advisory and process-scoped; a crashed process releases it
// automatically.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked indicates another run holds the lock
var ErrLocked = errors.New("another run is already in progress")

// Lock is a held run lock
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the run lock without blocking. Returns ErrLocked when
// a concurrent run holds it.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock file %s)", ErrLocked, path)
	}
	return &Lock{fl: fl}, nil
}

// Release gives the lock up. Safe to call once per Acquire.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}

// Path returns the lock file location
func (l *Lock) Path() string {
	return l.fl.Path()
}
