package hammer

import "time"

// SchemaVersion is written into every new metadata record. It is forward
// reserved: this code never rejects a record with a different value, it
// only refuses to interpret fields it does not recognize.
const SchemaVersion = "1"

// Status is the lifecycle state of a deployment.
type Status string

const (
	StatusReady    Status = "ready"
	StatusBooted   Status = "booted"
	StatusPrevious Status = "previous"
	StatusBroken   Status = "broken"
)

// Metadata is the flat key/value record stored at <deployment>/meta.json.
// Unknown keys encountered on disk must be preserved across updates, so
// callers that read a record and write it back carry Extra along.
type Metadata struct {
	Created         string // RFC 3339 UTC
	Action          string
	Parent          string
	Kernel          string
	SystemVersion   string
	Status          Status
	RollbackReason  string // optional
	SchemaVersion   string

	// Extra carries any keys this code doesn't know about, so they survive
	// a read/merge/write round trip untouched.
	Extra map[string]string
}

// Deployment identifies a single BTRFS subvolume under the deployments
// directory and its associated metadata.
type Deployment struct {
	// Name is the subvolume basename, e.g. "hammer-20250101000000".
	Name string
	// Path is the absolute path to the subvolume.
	Path string
	Meta *Metadata
}

// PendingMarker names the deployment of an in-flight, not-yet-confirmed
// commit. Its presence at boot means a reboot occurred mid-commit or
// immediately after commit without confirmation.
type PendingMarker struct {
	Deployment string
}

// Action values recorded in Metadata.Action. Install/Remove carry the
// package name as a suffix ("install vim").
const (
	ActionDeploy = "deploy"
	ActionUpdate = "update"
	ActionInstall = "install"
	ActionRemove  = "remove"
)

// HistoryEntry is a read-only projection of a deployment used by the Query
// Surface; IsCurrent is computed relative to the current symlink at query
// time.
type HistoryEntry struct {
	Name      string
	Created   time.Time
	Action    string
	Status    Status
	Parent    string
	IsCurrent bool
}
