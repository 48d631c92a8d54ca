package hammer

// MetadataStore reads and writes the per-deployment meta.json record and
// the pending-transaction marker.
type MetadataStore interface {
	// WriteMeta constructs and writes a fresh record for the deployment at
	// path: created=now(), plus the given fields. Empty optional fields
	// (RollbackReason) are omitted from the file rather than written as
	// empty strings.
	WriteMeta(path string, meta Metadata) error

	// ReadMeta reads the record for the deployment at path.
	ReadMeta(path string) (*Metadata, error)

	// UpdateMeta merges partial into the existing record: keys present in
	// partial overwrite, all others (including unknown Extra keys) are
	// preserved.
	UpdateMeta(path string, partial Metadata) error

	// SetStatusBroken is shorthand for UpdateMeta setting Status=broken
	// and, if reason is non-empty, RollbackReason=reason.
	SetStatusBroken(path string, reason string) error

	// SetStatusBooted is shorthand for UpdateMeta setting Status=booted.
	SetStatusBooted(path string) error

	// WritePendingMarker durably records that deployment is an in-flight
	// commit. Implementations must fsync before returning, so the marker
	// is guaranteed on disk before the caller performs the irreversible
	// default-subvolume switch.
	WritePendingMarker(deployment string) error

	// ReadPendingMarker returns the current marker, or nil if none is
	// present.
	ReadPendingMarker() (*PendingMarker, error)

	// ClearPendingMarker removes the marker. A no-op if absent.
	ClearPendingMarker() error
}
