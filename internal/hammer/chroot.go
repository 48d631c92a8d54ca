package hammer

// ChrootHarness manages the scoped bind-mount arrangement required to run
// package-manager commands inside a staged deployment. Bind creates
// proc/sys/dev under the target if absent and bind-mounts the host's
// corresponding directories; Unbind reverses it in the same order. The
// caller must Unbind before sealing a deployment read-only or switching it
// to default — a bound chroot cannot be made read-only.
type ChrootHarness interface {
	// Bind mounts /proc, /sys, /dev into target.
	Bind(target string) error
	// Unbind unmounts /proc, /sys, /dev from target. It attempts every
	// unmount even after one fails, logs each failure, and returns the
	// first error. During cleanup after an earlier failure the engine
	// discards that error, so the original failure is not masked.
	Unbind(target string) error
}
