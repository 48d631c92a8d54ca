// Package app wires the Transaction Engine and its component
// implementations from configuration, the way the teacher repo's BTApp
// sits between the CLI and the service layer.
package app

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/HackerOS-Linux-System/hammer/internal/bootloaderwriter"
	"github.com/HackerOS-Linux-System/hammer/internal/btrfsstore"
	"github.com/HackerOS-Linux-System/hammer/internal/chrootharness"
	"github.com/HackerOS-Linux-System/hammer/internal/config"
	"github.com/HackerOS-Linux-System/hammer/internal/execrunner"
	"github.com/HackerOS-Linux-System/hammer/internal/hammer"
	"github.com/HackerOS-Linux-System/hammer/internal/historyindex"
	"github.com/HackerOS-Linux-System/hammer/internal/lockfile"
	"github.com/HackerOS-Linux-System/hammer/internal/logging"
	"github.com/HackerOS-Linux-System/hammer/internal/metadatastore"
	"github.com/HackerOS-Linux-System/hammer/internal/sanitychecker"
)

// App is the fully wired application layer the CLI dispatches into. The
// caller must call Close when done.
type App struct {
	cfg    *config.Config
	engine *hammer.Engine
	index  hammer.HistoryIndex
	logger *logging.Logger
}

// New reads configuration from its default (or HAMMER_CONFIG_PATH)
// location and constructs a fully wired App. operation identifies the CLI
// command being run, used as the logger's operation ID.
func New(operation string) (*App, error) {
	cfg, err := config.ReadFromFile(config.DefaultPath())
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return NewFromConfig(cfg, operation)
}

// NewFromConfig constructs a fully wired App from an already-loaded
// Config, letting tests and tools bypass the filesystem config lookup.
func NewFromConfig(cfg *config.Config, operation string) (*App, error) {
	opID := time.Now().UTC().Format("20060102T150405Z") + "-" + operation

	logger, err := logging.New(cfg.LogPath, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	runner := execrunner.New()
	lock := lockfile.New(cfg.LockPath, logger)
	clock := hammer.RealClock{}
	idgen := hammer.UUIDGenerator{}
	snapshots := btrfsstore.New(runner, clock, idgen, cfg.DeploymentsDir, cfg.BTRFSRoot)
	harness := chrootharness.New(runner, logger)
	meta := metadatastore.New(cfg.PendingMarker)
	sanity := sanitychecker.New(runner)
	bootloader := bootloaderwriter.New(snapshots, cfg.BootloaderCap)

	index, err := historyindex.New()
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("creating deployment index: %w", err)
	}

	engineCfg := hammer.EngineConfig{
		BTRFSRoot:      cfg.BTRFSRoot,
		DeploymentsDir: cfg.DeploymentsDir,
		CurrentSymlink: cfg.CurrentSymlink,
		BootloaderCap:  cfg.BootloaderCap,
		RetentionKeep:  cfg.RetentionKeep,
	}

	engine := hammer.NewEngine(engineCfg, runner, lock, snapshots, harness, meta, sanity, bootloader, index, logger, clock, idgen)

	return &App{cfg: cfg, engine: engine, index: index, logger: logger}, nil
}

// Close releases the App's resources.
func (a *App) Close() error {
	var firstErr error
	if err := a.index.Close(); err != nil {
		firstErr = fmt.Errorf("closing deployment index: %w", err)
	}
	if err := a.logger.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing log file: %w", err)
	}
	return firstErr
}

// Engine exposes the wired Transaction Engine for the CLI dispatcher.
func (a *App) Engine() *hammer.Engine { return a.engine }

// ContainerTool returns the PATH-resolved binary name that --container
// invocations delegate to.
func (a *App) ContainerTool() string { return a.cfg.ContainerTool }

// packageNamePattern mirrors hammer's own validation so the container
// delegation path rejects the same unsafe names before ever exec'ing.
var packageNamePattern = regexp.MustCompile(`^[A-Za-z0-9+.-]+$`)

// RunContainerDelegate execs the configured container tool with
// subcommand and pkg as arguments, forwarding the child's stdio directly
// to the terminal, per SPEC_FULL.md's container delegation addition.
func (a *App) RunContainerDelegate(subcommand, pkg string) error {
	if !packageNamePattern.MatchString(pkg) {
		return hammer.ErrValidationFailed("invalid package name: " + pkg)
	}
	runner := execrunner.New()
	if err := runner.Inherit(a.cfg.ContainerTool, subcommand, pkg); err != nil {
		return fmt.Errorf("running %s: %w", a.cfg.ContainerTool, err)
	}
	return nil
}

// RequireRoot returns §7's NotRoot error if not running as the superuser;
// the CLI then exits 1. Called once at CLI startup, before any other work.
func RequireRoot() error {
	if os.Geteuid() != 0 {
		return hammer.ErrNotRoot()
	}
	return nil
}
