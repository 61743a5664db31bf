// Package lock guards the host's state database against concurrent
// hosts. Two host processes sharing one memento DB would race each other,
// so the bootstrap takes an exclusive lock keyed to the DB path first.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// StateLock is a single-instance lock implemented via a PID file +
// flock(2). The lock lives as long as the file descriptor stays open.
type StateLock struct {
	path string
	f    *os.File
}

// PathFor derives the lock file path from the state DB path: same
// directory, same base name, ".pid" extension.
func PathFor(dbPath string) string {
	base := filepath.Base(dbPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(dbPath), name+".pid")
}

// Acquire takes an exclusive non-blocking lock for the given state DB and
// records the current PID in it. It fails if another host already holds
// the lock.
func Acquire(dbPath string) (*StateLock, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("state db path is empty")
	}

	lockPath := PathFor(dbPath)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("state db already locked by another host: %w", err)
	}

	if err := writePID(f); err != nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		return nil, err
	}

	return &StateLock{path: lockPath, f: f}, nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("seek lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("write pid: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync lock file: %w", err)
	}
	return nil
}

// Path returns the lock file location.
func (l *StateLock) Path() string { return l.path }

// Release drops the lock. Safe to call on a nil or already released lock.
func (l *StateLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
