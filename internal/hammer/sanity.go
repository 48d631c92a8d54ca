package hammer

// SanityChecker verifies a staged deployment is bootable before it is
// sealed and published.
type SanityChecker interface {
	// Check asserts /boot/vmlinuz-<kernel> and /boot/initrd.img-<kernel>
	// exist inside deployment, then runs `mount -f -a` under chroot to
	// catch malformed fstab entries. Returns a *Error of KindSanityFailed
	// on any failure.
	Check(deployment string, kernel string) error
}
