// Package chrootharness implements hammer.ChrootHarness by bind-mounting
// the host's /proc, /sys and /dev into a staged deployment, the same scoped
// resource pattern the original hammer-core tool used before running any
// package-manager command under chroot.
package chrootharness

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/HackerOS-Linux-System/hammer/internal/hammer"
)

var bindTargets = []string{"proc", "sys", "dev"}

// Harness mounts and unmounts the scoped bind-mount set via the system
// mount(8)/umount(8) tools.
type Harness struct {
	runner hammer.CommandRunner
	logger hammer.Logger
}

var _ hammer.ChrootHarness = (*Harness)(nil)

// New constructs a Harness.
func New(runner hammer.CommandRunner, logger hammer.Logger) *Harness {
	if logger == nil {
		logger = hammer.NewNopLogger()
	}
	return &Harness{runner: runner, logger: logger}
}

// Bind creates proc/sys/dev under target if absent and bind-mounts the
// host's corresponding directories into them.
func (h *Harness) Bind(target string) error {
	for _, name := range bindTargets {
		dest := filepath.Join(target, name)
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dest, err)
		}
		src := filepath.Join("/", name)
		res, err := h.runner.Capture("mount", "--bind", src, dest)
		if err != nil {
			return fmt.Errorf("running mount --bind %s %s: %w", src, dest, err)
		}
		if !res.Success {
			return fmt.Errorf("mount --bind %s %s failed: %s", src, dest, res.Stderr)
		}
	}
	return nil
}

// Unbind unmounts proc/sys/dev from target in the same order Bind mounted
// them. A failed unmount is logged and the remaining ones are still
// attempted; the first failure is returned.
func (h *Harness) Unbind(target string) error {
	var firstErr error
	for _, name := range bindTargets {
		dest := filepath.Join(target, name)
		res, err := h.runner.Capture("umount", dest)
		if err != nil {
			h.logger.Warn("failed to run umount", "path", dest, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("running umount %s: %w", dest, err)
			}
			continue
		}
		if !res.Success {
			h.logger.Warn("umount failed", "path", dest, "stderr", res.Stderr)
			if firstErr == nil {
				firstErr = fmt.Errorf("umount %s failed: %s", dest, res.Stderr)
			}
		}
	}
	return firstErr
}
