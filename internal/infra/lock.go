package infra

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/eliteGoblin/rtsprec/internal/domain"
)

// FileLock implements domain.InstanceLock with an advisory flock.
// The kernel drops the lock when the holder dies, so a crash never leaves it stale.
type FileLock struct {
	lock *flock.Flock
}

// NewFileLock creates an instance lock at path.
func NewFileLock(path string) domain.InstanceLock {
	return &FileLock{lock: flock.New(path)}
}

// TryLock acquires the lock without blocking.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.lock.Path()), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	return ok, nil
}

// Unlock releases the lock.
func (l *FileLock) Unlock() error {
	return l.lock.Unlock()
}

// Path returns the lock file location.
func (l *FileLock) Path() string {
	return l.lock.Path()
}

// Ensure FileLock implements domain.InstanceLock.
var _ domain.InstanceLock = (*FileLock)(nil)
