// Package sanitychecker implements hammer.SanityChecker: pre-commit
// verification that a staged deployment is bootable.
package sanitychecker

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/HackerOS-Linux-System/hammer/internal/hammer"
)

// Checker verifies a staged deployment has a loadable kernel, matching
// initramfs, and a mountable fstab.
type Checker struct {
	runner hammer.CommandRunner
}

var _ hammer.SanityChecker = (*Checker)(nil)

// New constructs a Checker.
func New(runner hammer.CommandRunner) *Checker {
	return &Checker{runner: runner}
}

// Check asserts the kernel and initramfs exist inside deployment, then
// runs `mount -f -a` under chroot to catch malformed fstab entries.
func (c *Checker) Check(deployment string, kernel string) error {
	vmlinuz := filepath.Join(deployment, "boot", "vmlinuz-"+kernel)
	if _, err := os.Stat(vmlinuz); err != nil {
		return hammer.ErrSanityFailed(fmt.Sprintf("missing kernel image %s: %v", vmlinuz, err))
	}

	initrd := filepath.Join(deployment, "boot", "initrd.img-"+kernel)
	if _, err := os.Stat(initrd); err != nil {
		return hammer.ErrSanityFailed(fmt.Sprintf("missing initramfs %s: %v", initrd, err))
	}

	res, err := c.runner.Capture("chroot", deployment, "mount", "-f", "-a")
	if err != nil {
		return hammer.ErrSanityFailed("running fake mount -a under chroot: " + err.Error())
	}
	if !res.Success {
		return hammer.ErrSanityFailed("fstab mount check failed: " + res.Stderr)
	}
	return nil
}
