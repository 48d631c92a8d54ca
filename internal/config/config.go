// Package config reads hammer's TOML configuration file, following the
// teacher repo's config-file pattern (BurntSushi/toml, a Manager with
// Read/Write, a ReadFromFile convenience wrapper).
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds the fixed paths and tunables §6 of the specification
// names, all overridable from their documented defaults.
type Config struct {
	BTRFSRoot       string `toml:"btrfs_root"`
	DeploymentsDir  string `toml:"deployments_dir"`
	CurrentSymlink  string `toml:"current_symlink"`
	PendingMarker   string `toml:"pending_marker"`
	LockPath        string `toml:"lock_path"`
	LogPath         string `toml:"log_path"`
	BootloaderCap   int    `toml:"bootloader_cap"`
	RetentionKeep   int    `toml:"retention_keep"`
	ContainerTool   string `toml:"container_tool"`
}

// Default returns the configuration described by §6 of the specification:
// every fixed path at its documented location.
func Default() *Config {
	return &Config{
		BTRFSRoot:      "/btrfs-root",
		DeploymentsDir: "/btrfs-root/deployments",
		CurrentSymlink: "/btrfs-root/current",
		PendingMarker:  "/btrfs-root/hammer-transaction",
		LockPath:       "/run/hammer.lock",
		LogPath:        "/usr/lib/HackerOS/hammer/logs/hammer-core.log",
		BootloaderCap:  5,
		RetentionKeep:  5,
		ContainerTool:  "hammer-container",
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from r, filling unset fields from Default.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// Write encodes cfg to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from path. If path does not exist, the
// documented defaults are returned rather than an error: hammer is
// expected to run correctly on a fresh install with no config file.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("opening config file %s: %w", path, err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultPath returns the config file location, honoring HAMMER_CONFIG_PATH.
func DefaultPath() string {
	if p := os.Getenv("HAMMER_CONFIG_PATH"); p != "" {
		return p
	}
	return "/etc/hammer/hammer.toml"
}
