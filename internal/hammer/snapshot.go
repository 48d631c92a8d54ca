package hammer

// SnapshotStore is CRUD over BTRFS subvolumes under the deployments
// directory. Every operation maps to one or more external `btrfs`
// invocations; failures are returned as plain errors, which the engine
// wraps (as *Error of KindSnapshotError where it wraps them).
type SnapshotStore interface {
	// Create produces a new deployment snapshotted from src. If writable,
	// the snapshot is created read-write; otherwise it is created
	// read-only directly. The returned Deployment's Name is derived from
	// the current local wall clock at one-second resolution; a
	// disambiguating suffix is appended if a deployment with that name
	// already exists.
	Create(src *Deployment, writable bool) (*Deployment, error)

	// Delete removes a subvolume. Best-effort: failures are returned but
	// are non-fatal for the caller's retention sweep.
	Delete(path string) error

	// SetDefault sets the subvolume's ID as the filesystem's default-mount
	// subvolume. Irreversible without another call — this is the publish
	// step.
	SetDefault(path string) error

	// SetReadOnly toggles the "ro" property on exactly the named
	// subvolume.
	SetReadOnly(path string, ro bool) error

	// SetReadOnlyRecursive toggles "ro" on the named subvolume and every
	// nested subvolume discovered by listing.
	SetReadOnlyRecursive(path string, ro bool) error

	// GetID returns the BTRFS subvolume ID for path.
	GetID(path string) (string, error)

	// IsReadOnly reports whether the subvolume's "ro" property is set,
	// parsed from the same `btrfs subvolume show` output as GetID.
	IsReadOnly(path string) (bool, error)

	// GetUUID returns the filesystem UUID hosting the deployments
	// directory.
	GetUUID() (string, error)

	// List enumerates deployment directory entries whose basename begins
	// with "hammer-", returning basenames only.
	List() ([]string, error)
}
