// Package lock serializes deploys with a flock-based file lock and
// PID-based stale detection. Two concurrent deploys against the same
// production tree would race, so the second one fails fast instead.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	apperrors "github.com/hadeploy/hadeploy/internal/errors"
)

// Lock is a held deploy lock.
type Lock struct {
	flock    *flock.Flock
	pidFile  string
	lockPath string
}

// Manager creates deploy locks under <dataDir>/locks.
type Manager struct {
	lockDir string
}

// NewManager creates the lock directory if needed.
func NewManager(dataDir string) (*Manager, error) {
	lockDir := filepath.Join(dataDir, "locks")
	if err := os.MkdirAll(lockDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &Manager{lockDir: lockDir}, nil
}

// Acquire takes the deploy lock, cleaning up a stale lock left by a dead
// process first. A lock held by a live process fails with its PID.
func (m *Manager) Acquire(ctx context.Context) (*Lock, error) {
	lockPath := filepath.Join(m.lockDir, "deploy.lock")
	pidFile := filepath.Join(m.lockDir, "deploy.pid")

	m.cleanStale(pidFile, lockPath)

	fl := flock.New(lockPath)
	locked, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire deploy lock: %w", err)
	}
	if !locked {
		if pid, err := readPID(pidFile); err == nil {
			return nil, fmt.Errorf("%w: held by PID %d", apperrors.ErrDeployLocked, pid)
		}
		return nil, apperrors.ErrDeployLocked
	}

	if err := writePID(pidFile); err != nil {
		fl.Unlock() //nolint:errcheck // best effort on the failure path
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}

	return &Lock{flock: fl, pidFile: pidFile, lockPath: lockPath}, nil
}

// IsLocked reports whether a deploy is in progress and, when known, by whom.
func (m *Manager) IsLocked() (bool, int, error) {
	lockPath := filepath.Join(m.lockDir, "deploy.lock")
	pidFile := filepath.Join(m.lockDir, "deploy.pid")

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return false, 0, fmt.Errorf("failed to check deploy lock: %w", err)
	}
	if locked {
		fl.Unlock() //nolint:errcheck // just probing
		return false, 0, nil
	}

	pid, err := readPID(pidFile)
	if err != nil {
		return true, 0, nil
	}
	return true, pid, nil
}

// cleanStale removes lock state left behind by a process that died.
func (m *Manager) cleanStale(pidFile, lockPath string) {
	pid, err := readPID(pidFile)
	if err != nil {
		return
	}
	if processAlive(pid) {
		return
	}
	os.Remove(pidFile)
	os.Remove(lockPath)
}

// Release unlocks and removes the lock files.
func (l *Lock) Release() error {
	os.Remove(l.pidFile)
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release deploy lock: %w", err)
	}
	os.Remove(l.lockPath)
	return nil
}

func writePID(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// processAlive checks whether a PID refers to a running process. Signal 0
// performs the permission and existence checks without delivering anything.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
		return false
	}
	// EPERM and anything undetermined: assume alive.
	return true
}
