// Package pidlock implements the single-instance guard: a PID file that
// refuses a second concurrent run against the same config (original_source's
// nntpsucka.py "pidlock.PidLock" / "AlreadyLockedException").
package pidlock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// AlreadyLockedError reports that another process already holds the lock.
type AlreadyLockedError struct {
	Path string
	PID  int
}

func (e *AlreadyLockedError) Error() string {
	return fmt.Sprintf("already running: pid %d (%s)", e.PID, e.Path)
}

// Lock is a held PID file. Release removes it.
type Lock struct {
	path string
}

// Acquire creates path containing the current PID. If path already exists
// and names a live process, Acquire returns *AlreadyLockedError. A stale
// lock file (process no longer exists) is reclaimed silently.
func Acquire(path string) (*Lock, error) {
	if existing, err := os.ReadFile(path); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(existing))); perr == nil && processAlive(pid) {
			return nil, &AlreadyLockedError{Path: path, PID: pid}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("pidlock: create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return nil, fmt.Errorf("pidlock: write %s: %w", path, err)
	}
	return &Lock{path: path}, nil
}

// Release removes the PID file. Safe to call once on a successfully
// Acquire'd lock; the caller owns ordering (normally via defer).
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pidlock: remove %s: %w", l.path, err)
	}
	return nil
}

// processAlive reports whether pid refers to a running process. On Unix,
// signal 0 performs existence/permission checks without delivering anything.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
