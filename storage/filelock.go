package storage

import (
	"os"
	"path/filepath"
	"time"
)

const lockPollInterval = 10 * time.Millisecond

// FileLock is an advisory lock on path + ".lock", held by one process at a
// time. The platform files provide tryLock and unlock.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a file lock. The lock is not acquired until Lock() is called.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path + ".lock"}
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// Lock acquires an exclusive lock, polling until timeout.
// Returns ErrLockTimeout if another process keeps holding it.
func (l *FileLock) Lock(timeout time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return &StorageError{Op: "lock", Entity: "file", ID: l.path, Err: err}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return &StorageError{Op: "lock", Entity: "file", ID: l.path, Err: err}
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := tryLock(f); err == nil {
			l.file = f
			return nil
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(lockPollInterval)
	}

	f.Close()
	return &StorageError{Op: "lock", Entity: "file", ID: l.path, Err: ErrLockTimeout}
}

// Unlock releases the lock. Calling it twice is harmless.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	err := unlock(l.file)
	l.file.Close()
	os.Remove(l.path)
	l.file = nil
	return err
}
