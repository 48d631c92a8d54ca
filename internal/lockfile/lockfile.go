// Package lockfile implements hammer.LockManager with an exclusively
// created file, the same create-and-check-EEXIST pattern used for staged
// file locking elsewhere in the ecosystem.
package lockfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/HackerOS-Linux-System/hammer/internal/hammer"
)

// Manager guards single-writer access via a well-known path.
type Manager struct {
	path   string
	logger hammer.Logger
	held   bool
}

var _ hammer.LockManager = (*Manager)(nil)

// New constructs a Manager for the given lock file path.
func New(path string, logger hammer.Logger) *Manager {
	if logger == nil {
		logger = hammer.NewNopLogger()
	}
	return &Manager{path: path, logger: logger}
}

// Acquire creates the lock file exclusively, failing if it already exists.
func (m *Manager) Acquire() error {
	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("lock already held at %s", m.path)
		}
		return fmt.Errorf("creating lock file %s: %w", m.path, err)
	}
	defer f.Close()
	if pid := os.Getpid(); pid > 0 {
		fmt.Fprintf(f, "%d\n", pid)
	}
	m.held = true
	return nil
}

// Release deletes the lock file. Failures are logged, never returned: a
// dangling lock file is recoverable by an operator, but a panic mid-release
// would leave the caller unable to finish cleaning up.
func (m *Manager) Release() {
	if !m.held {
		return
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("failed to remove lock file", "path", m.path, "error", err)
	}
	m.held = false
}
