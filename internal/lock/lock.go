// Package lock keeps two pagecast processes on one host from pushing to the
// same broadcast endpoint.
package lock

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
)

// ErrHeld is returned when another process holds the endpoint lock.
var ErrHeld = errors.New("another pagecast instance is streaming to this endpoint")

// EndpointLock is an advisory file lock keyed by the endpoint URL.
type EndpointLock struct {
	path string
	lock *flock.Flock
}

// PathFor returns the lock file for endpoint under dir. The endpoint is hashed
// so the stream key never appears on disk.
func PathFor(dir, endpoint string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(endpoint))
	return filepath.Join(dir, "pagecast-"+strconv.FormatUint(h.Sum64(), 16)+".lock")
}

// Acquire takes the lock for endpoint without blocking.
func Acquire(dir, endpoint string) (*EndpointLock, error) {
	path := PathFor(dir, endpoint)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrHeld, path)
	}
	return &EndpointLock{path: path, lock: fl}, nil
}

// Path returns the lock file path.
func (l *EndpointLock) Path() string {
	return l.path
}

// Release unlocks and removes the lock file.
func (l *EndpointLock) Release() error {
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
