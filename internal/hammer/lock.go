package hammer

// LockManager enforces single-writer discipline via a well-known lock
// path. Acquire returns an error if the lock is already held; the engine
// reports it as a *Error of KindConcurrentOperation. Release is idempotent and safe to call even if Acquire
// failed.
type LockManager interface {
	// Acquire creates the lock file, failing if it already exists.
	Acquire() error
	// Release deletes the lock file. Never returns an error the caller
	// must act on — release failures are logged by the implementation and
	// otherwise swallowed, since holding a lock file open across process
	// exit is worse than leaking a delete failure.
	Release()
}
