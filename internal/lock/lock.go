// Package lock serializes runs so two invocations never mutate the plugin
// store or the state database at the same time.
package lock

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// RunLock is an exclusive run guard backed by a PID file and flock(2). The
// lock is held for as long as the file descriptor stays open, so a crashed
// run releases it automatically.
type RunLock struct {
	path string
	f    *os.File
}

// Acquire takes the run lock at path without blocking. When another run
// holds it, the returned error names the holder's PID as recorded in the
// lock file.
func Acquire(path string) (*RunLock, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := holderPID(f)
		_ = f.Close()
		if holder != "" {
			return nil, fmt.Errorf("another run is in progress (pid %s)", holder)
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	if err := stamp(f); err != nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		return nil, err
	}

	return &RunLock{path: path, f: f}, nil
}

// stamp replaces the file contents with the current PID.
func stamp(f *os.File) error {
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

func holderPID(f *os.File) string {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return ""
	}
	return string(bytes.TrimSpace(buf[:n]))
}

func (l *RunLock) Path() string { return l.path }

// Release drops the lock and closes the PID file. Safe to call on a nil
// receiver and idempotent.
func (l *RunLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
