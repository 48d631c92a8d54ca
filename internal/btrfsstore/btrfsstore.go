// Package btrfsstore implements hammer.SnapshotStore over the btrfs(8)
// command-line tool.
package btrfsstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/HackerOS-Linux-System/hammer/internal/hammer"
)

const deploymentPrefix = "hammer-"
const timestampLayout = "20060102150405"

// Store manages deployment subvolumes via the btrfs CLI.
type Store struct {
	runner         hammer.CommandRunner
	clock          hammer.Clock
	idgen          hammer.IDGenerator
	deploymentsDir string
	btrfsRoot      string
}

var _ hammer.SnapshotStore = (*Store)(nil)

// New constructs a Store. deploymentsDir is the directory holding every
// hammer-<timestamp> subvolume; btrfsRoot is the top-level mount point
// passed to `btrfs subvolume set-default`.
func New(runner hammer.CommandRunner, clock hammer.Clock, idgen hammer.IDGenerator, deploymentsDir, btrfsRoot string) *Store {
	return &Store{
		runner:         runner,
		clock:          clock,
		idgen:          idgen,
		deploymentsDir: deploymentsDir,
		btrfsRoot:      btrfsRoot,
	}
}

// Create snapshots src into a freshly named deployment directory.
func (s *Store) Create(src *hammer.Deployment, writable bool) (*hammer.Deployment, error) {
	name, err := s.nextName()
	if err != nil {
		return nil, err
	}
	dest := filepath.Join(s.deploymentsDir, name)

	argv := []string{"btrfs", "subvolume", "snapshot"}
	if !writable {
		argv = append(argv, "-r")
	}
	argv = append(argv, src.Path, dest)

	res, err := s.runner.Capture(argv...)
	if err != nil {
		return nil, fmt.Errorf("running btrfs subvolume snapshot: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("btrfs subvolume snapshot failed: %s", res.Stderr)
	}

	return &hammer.Deployment{Name: name, Path: dest}, nil
}

// nextName picks a timestamp-based name, disambiguating with an
// IDGenerator-provided suffix on collision.
func (s *Store) nextName() (string, error) {
	base := deploymentPrefix + s.clock.Now().Format(timestampLayout)
	name := base
	for {
		if _, err := os.Stat(filepath.Join(s.deploymentsDir, name)); os.IsNotExist(err) {
			return name, nil
		} else if err != nil {
			return "", fmt.Errorf("checking deployment name %s: %w", name, err)
		}
		name = base + "-" + s.idgen.New()
	}
}

// Delete removes a subvolume.
func (s *Store) Delete(path string) error {
	res, err := s.runner.Capture("btrfs", "subvolume", "delete", path)
	if err != nil {
		return fmt.Errorf("running btrfs subvolume delete: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("btrfs subvolume delete failed: %s", res.Stderr)
	}
	return nil
}

// SetDefault makes path the filesystem's default-mount subvolume.
func (s *Store) SetDefault(path string) error {
	id, err := s.GetID(path)
	if err != nil {
		return err
	}
	res, err := s.runner.Capture("btrfs", "subvolume", "set-default", id, s.btrfsRoot)
	if err != nil {
		return fmt.Errorf("running btrfs subvolume set-default: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("btrfs subvolume set-default failed: %s", res.Stderr)
	}
	return nil
}

// SetReadOnly toggles the "ro" property on exactly path.
func (s *Store) SetReadOnly(path string, ro bool) error {
	res, err := s.runner.Capture("btrfs", "property", "set", "-ts", path, "ro", strconv.FormatBool(ro))
	if err != nil {
		return fmt.Errorf("running btrfs property set: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("btrfs property set ro=%t failed for %s: %s", ro, path, res.Stderr)
	}
	return nil
}

// SetReadOnlyRecursive toggles "ro" on path and every nested subvolume.
func (s *Store) SetReadOnlyRecursive(path string, ro bool) error {
	if err := s.SetReadOnly(path, ro); err != nil {
		return err
	}
	res, err := s.runner.Capture("btrfs", "subvolume", "list", "-o", path)
	if err != nil {
		return fmt.Errorf("listing nested subvolumes of %s: %w", path, err)
	}
	if !res.Success {
		return fmt.Errorf("btrfs subvolume list failed for %s: %s", path, res.Stderr)
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, " path ")
		if idx < 0 {
			continue
		}
		rel := strings.TrimSpace(line[idx+len(" path "):])
		nested := filepath.Join(filepath.Dir(path), rel)
		if err := s.SetReadOnly(nested, ro); err != nil {
			return err
		}
	}
	return nil
}

// GetID returns the BTRFS subvolume ID for path, parsed from `btrfs
// subvolume show`.
func (s *Store) GetID(path string) (string, error) {
	fields, err := s.show(path)
	if err != nil {
		return "", err
	}
	id, ok := fields["Subvolume ID"]
	if !ok {
		return "", fmt.Errorf("btrfs subvolume show for %s did not report a Subvolume ID", path)
	}
	return id, nil
}

// IsReadOnly reports whether path's "ro" property is set.
func (s *Store) IsReadOnly(path string) (bool, error) {
	fields, err := s.show(path)
	if err != nil {
		return false, err
	}
	flags, ok := fields["Flags"]
	if !ok {
		return false, nil
	}
	return strings.Contains(flags, "readonly"), nil
}

// GetUUID returns the filesystem UUID hosting the deployments directory,
// parsed from the "uuid:" field of `btrfs filesystem show`.
func (s *Store) GetUUID() (string, error) {
	res, err := s.runner.Capture("btrfs", "filesystem", "show", s.deploymentsDir)
	if err != nil {
		return "", fmt.Errorf("running btrfs filesystem show %s: %w", s.deploymentsDir, err)
	}
	if !res.Success {
		return "", fmt.Errorf("btrfs filesystem show failed for %s: %s", s.deploymentsDir, res.Stderr)
	}
	words := strings.Fields(res.Stdout)
	for i := 0; i+1 < len(words); i++ {
		if words[i] == "uuid:" {
			return words[i+1], nil
		}
	}
	return "", fmt.Errorf("btrfs filesystem show for %s did not report a UUID", s.deploymentsDir)
}

// List enumerates deployment directory entries whose basename begins with
// "hammer-", returning basenames only, sorted lexicographically.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.deploymentsDir)
	if err != nil {
		return nil, fmt.Errorf("reading deployments directory %s: %w", s.deploymentsDir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), deploymentPrefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// show runs `btrfs subvolume show <path>` and parses its "Key: Value" and
// indented "Flags:" style output into a map.
func (s *Store) show(path string) (map[string]string, error) {
	res, err := s.runner.Capture("btrfs", "subvolume", "show", path)
	if err != nil {
		return nil, fmt.Errorf("running btrfs subvolume show %s: %w", path, err)
	}
	if !res.Success {
		return nil, fmt.Errorf("btrfs subvolume show failed for %s: %s", path, res.Stderr)
	}

	fields := make(map[string]string)
	for _, line := range strings.Split(res.Stdout, "\n") {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		fields[key] = val
	}
	return fields, nil
}
