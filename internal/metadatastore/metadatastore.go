// Package metadatastore implements hammer.MetadataStore over plain JSON
// files: a meta.json inside each deployment and a single pending-marker
// file at a fixed path.
package metadatastore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/HackerOS-Linux-System/hammer/internal/hammer"
)

// knownKeys are the meta.json fields promoted to Metadata struct fields;
// everything else lands in Extra and survives untouched across a
// read/merge/write round trip.
var knownKeys = map[string]bool{
	"created":         true,
	"action":          true,
	"parent":          true,
	"kernel":          true,
	"system_version":  true,
	"status":          true,
	"rollback_reason": true,
	"hammer_schema":   true,
}

// Store reads and writes meta.json and the pending-transaction marker.
type Store struct {
	markerPath string
}

var _ hammer.MetadataStore = (*Store)(nil)

// New constructs a Store. markerPath is the fixed pending-transaction
// marker path (§6: /btrfs-root/hammer-transaction).
func New(markerPath string) *Store {
	return &Store{markerPath: markerPath}
}

const metaFileName = "meta.json"

func metaPath(deployment string) string {
	return filepath.Join(deployment, metaFileName)
}

// WriteMeta constructs and writes a fresh record.
func (s *Store) WriteMeta(path string, meta hammer.Metadata) error {
	if meta.Created == "" {
		meta.Created = time.Now().UTC().Format(time.RFC3339)
	}
	if meta.SchemaVersion == "" {
		meta.SchemaVersion = hammer.SchemaVersion
	}
	return writeRecord(metaPath(path), toMap(meta))
}

// ReadMeta reads the record at path.
func (s *Store) ReadMeta(path string) (*hammer.Metadata, error) {
	m, err := readMap(metaPath(path))
	if err != nil {
		return nil, err
	}
	return fromMap(m), nil
}

// UpdateMeta merges partial into the existing record.
func (s *Store) UpdateMeta(path string, partial hammer.Metadata) error {
	fp := metaPath(path)
	existing, err := readMap(fp)
	if err != nil {
		return err
	}
	for k, v := range toMap(partial) {
		existing[k] = v
	}
	return writeRecord(fp, existing)
}

// SetStatusBroken marks the deployment at path broken, optionally with a
// rollback reason.
func (s *Store) SetStatusBroken(path string, reason string) error {
	return s.UpdateMeta(path, hammer.Metadata{Status: hammer.StatusBroken, RollbackReason: reason})
}

// SetStatusBooted marks the deployment at path booted.
func (s *Store) SetStatusBooted(path string) error {
	return s.UpdateMeta(path, hammer.Metadata{Status: hammer.StatusBooted})
}

// WritePendingMarker durably records deployment as the in-flight commit,
// fsyncing before return so the marker is on disk before the caller
// performs the irreversible default-subvolume switch.
func (s *Store) WritePendingMarker(deployment string) error {
	if err := os.MkdirAll(filepath.Dir(s.markerPath), 0o755); err != nil {
		return fmt.Errorf("creating pending marker directory: %w", err)
	}
	tmp := s.markerPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating pending marker: %w", err)
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(map[string]string{"deployment": deployment}); err != nil {
		f.Close()
		return fmt.Errorf("encoding pending marker: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing pending marker: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing pending marker: %w", err)
	}
	if err := os.Rename(tmp, s.markerPath); err != nil {
		return fmt.Errorf("publishing pending marker: %w", err)
	}
	return nil
}

// ReadPendingMarker returns the current marker, or nil if none is present.
func (s *Store) ReadPendingMarker() (*hammer.PendingMarker, error) {
	data, err := os.ReadFile(s.markerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading pending marker: %w", err)
	}
	var raw struct {
		Deployment string `json:"deployment"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing pending marker: %w", err)
	}
	return &hammer.PendingMarker{Deployment: raw.Deployment}, nil
}

// ClearPendingMarker removes the marker. A no-op if absent.
func (s *Store) ClearPendingMarker() error {
	if err := os.Remove(s.markerPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing pending marker: %w", err)
	}
	return nil
}

func readMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("reading metadata %s: %w", path, err)
		}
		return nil, fmt.Errorf("reading metadata %s: %w", path, err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing metadata %s: %w", path, err)
	}
	return m, nil
}

func writeRecord(path string, m map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publishing metadata: %w", err)
	}
	return nil
}

// toMap flattens a Metadata into its on-disk map form, omitting empty
// optional fields and carrying Extra keys through.
func toMap(meta hammer.Metadata) map[string]string {
	m := make(map[string]string, len(meta.Extra)+8)
	for k, v := range meta.Extra {
		m[k] = v
	}
	if meta.Created != "" {
		m["created"] = meta.Created
	}
	if meta.Action != "" {
		m["action"] = meta.Action
	}
	if meta.Parent != "" {
		m["parent"] = meta.Parent
	}
	if meta.Kernel != "" {
		m["kernel"] = meta.Kernel
	}
	if meta.SystemVersion != "" {
		m["system_version"] = meta.SystemVersion
	}
	if meta.Status != "" {
		m["status"] = string(meta.Status)
	}
	if meta.RollbackReason != "" {
		m["rollback_reason"] = meta.RollbackReason
	}
	if meta.SchemaVersion != "" {
		m["hammer_schema"] = meta.SchemaVersion
	}
	return m
}

// fromMap inflates the on-disk map form into a Metadata, preserving
// unrecognized keys in Extra.
func fromMap(m map[string]string) *hammer.Metadata {
	meta := &hammer.Metadata{
		Created:        m["created"],
		Action:         m["action"],
		Parent:         m["parent"],
		Kernel:         m["kernel"],
		SystemVersion:  m["system_version"],
		Status:         hammer.Status(m["status"]),
		RollbackReason: m["rollback_reason"],
		SchemaVersion:  m["hammer_schema"],
	}
	for k, v := range m {
		if !knownKeys[k] {
			if meta.Extra == nil {
				meta.Extra = make(map[string]string)
			}
			meta.Extra[k] = v
		}
	}
	return meta
}
