package fs

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrWouldBlock indicates a lock is already held, by another process or by
// another open of the same file in this process.
//
// Callers should use [errors.Is] to detect lock contention and treat it as
// a transient, retryable condition rather than a fatal error.
var ErrWouldBlock = errors.New("fs: lock would block")

// Lock represents an acquired advisory file lock.
type Lock struct {
	file File
}

// Close releases the lock and closes the underlying file descriptor.
func (l *Lock) Close() error {
	return l.file.Close()
}

// Locker acquires advisory, non-blocking exclusive locks on files via flock(2).
//
// Each TryLock opens its own file description, and flock locks are
// associated with the open file description, not the process: two TryLock
// calls on the same path exclude each other even within one process.
type Locker struct {
	fs FS
}

// NewLocker returns a Locker backed by the given filesystem.
func NewLocker(fsys FS) *Locker {
	return &Locker{fs: fsys}
}

// TryLock attempts to acquire an exclusive, non-blocking lock on path.
// The file is created if it does not exist.
//
// Returns [ErrWouldBlock] if the lock is already held, whether by another
// process or by an earlier TryLock in this one.
func (lk *Locker) TryLock(path string) (*Lock, error) {
	f, err := lk.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %q: %w", path, err)
	}

	flockErr := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if flockErr != nil {
		_ = f.Close()

		if errors.Is(flockErr, syscall.EWOULDBLOCK) {
			return nil, ErrWouldBlock
		}

		return nil, fmt.Errorf("flock %q: %w", path, flockErr)
	}

	return &Lock{file: f}, nil
}
