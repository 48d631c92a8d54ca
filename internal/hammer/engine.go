package hammer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EngineConfig holds the fixed paths and tunables the Transaction Engine
// operates over. Defaults match §6 of the specification exactly; a real
// deployment overrides them only for testing.
type EngineConfig struct {
	BTRFSRoot       string
	DeploymentsDir  string
	CurrentSymlink  string
	BootloaderCap   int
	RetentionKeep   int
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BTRFSRoot:      "/btrfs-root",
		DeploymentsDir: "/btrfs-root/deployments",
		CurrentSymlink: "/btrfs-root/current",
		BootloaderCap:  5,
		RetentionKeep:  5,
	}
}

// Engine drives the prepare/commit/rollback sequence for every mutating
// operation and serves the read-only Query Surface. It is the single
// orchestration point that composes every other component interface.
type Engine struct {
	cfg        EngineConfig
	runner     CommandRunner
	lock       LockManager
	snapshots  SnapshotStore
	chroot     ChrootHarness
	meta       MetadataStore
	sanity     SanityChecker
	bootloader BootloaderWriter
	index      HistoryIndex
	logger     Logger
	clock      Clock
	idgen      IDGenerator
}

// NewEngine wires an Engine from its component dependencies.
func NewEngine(cfg EngineConfig, runner CommandRunner, lock LockManager, snapshots SnapshotStore, chroot ChrootHarness, meta MetadataStore, sanity SanityChecker, bootloader BootloaderWriter, index HistoryIndex, logger Logger, clock Clock, idgen IDGenerator) *Engine {
	return &Engine{
		cfg:        cfg,
		runner:     runner,
		lock:       lock,
		snapshots:  snapshots,
		chroot:     chroot,
		meta:       meta,
		sanity:     sanity,
		bootloader: bootloader,
		index:      index,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
	}
}

// validPackageName is the validation the design notes mandate for any
// package name that ends up on a chroot command line.
func validPackageName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '+' || r == '.' || r == '-'
		if !ok {
			return false
		}
	}
	return true
}

// currentName returns the basename of the deployment the current symlink
// points at.
func (e *Engine) currentName() (string, error) {
	target, err := os.Readlink(e.cfg.CurrentSymlink)
	if err != nil {
		return "", ErrValidationFailed("current symlink missing or unreadable: " + err.Error())
	}
	return filepath.Base(target), nil
}

// currentDeployment loads the current deployment's metadata.
func (e *Engine) currentDeployment() (*Deployment, error) {
	name, err := e.currentName()
	if err != nil {
		return nil, err
	}
	return e.loadDeployment(name)
}

func (e *Engine) deploymentPath(name string) string {
	return filepath.Join(e.cfg.DeploymentsDir, name)
}

func (e *Engine) loadDeployment(name string) (*Deployment, error) {
	path := e.deploymentPath(name)
	meta, err := e.meta.ReadMeta(path)
	if err != nil {
		return nil, ErrMetadataError("reading metadata for "+name, err)
	}
	return &Deployment{Name: name, Path: path, Meta: meta}, nil
}

// listDeployments loads every deployment under the deployments directory.
func (e *Engine) listDeployments() ([]*Deployment, error) {
	names, err := e.snapshots.List()
	if err != nil {
		return nil, ErrSnapshotError("listing deployments", err)
	}
	deployments := make([]*Deployment, 0, len(names))
	for _, name := range names {
		d, err := e.loadDeployment(name)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, d)
	}
	sort.Slice(deployments, func(i, j int) bool { return deployments[i].Name < deployments[j].Name })
	return deployments, nil
}

// validateSystem enforces the invariants of §3 that can be checked cheaply
// before starting a mutation: the root filesystem is BTRFS, the current
// symlink exists, and it points at a read-only deployment with valid
// metadata.
func (e *Engine) validateSystem() (*Deployment, error) {
	if err := e.checkRootIsBTRFS(); err != nil {
		return nil, err
	}

	current, err := e.currentDeployment()
	if err != nil {
		return nil, err
	}
	ro, err := e.snapshots.IsReadOnly(current.Path)
	if err != nil {
		return nil, ErrSnapshotError("checking current deployment read-only state", err)
	}
	if !ro {
		return nil, ErrValidationFailed("current deployment is not read-only")
	}
	return current, nil
}

// checkRootIsBTRFS confirms the configured root is mounted with the btrfs
// filesystem type, per §7's ValidationFailed cause "root not on BTRFS".
// findmnt is queried through the CommandRunner the same way every other
// external check in the engine is made, rather than statting the
// filesystem directly, so the check is fakeable in tests like everything
// else the engine depends on.
func (e *Engine) checkRootIsBTRFS() error {
	res, err := e.runner.Capture("findmnt", "-no", "FSTYPE", e.cfg.BTRFSRoot)
	if err != nil || !res.Success {
		return ErrValidationFailed("could not determine filesystem type of " + e.cfg.BTRFSRoot)
	}
	fstype := strings.TrimSpace(res.Stdout)
	if fstype != "btrfs" {
		return ErrValidationFailed("root filesystem is not btrfs")
	}
	return nil
}

// chrootTrailer is appended to every mutating operation's command sequence
// per §4.8 step 7.
const chrootTrailer = "dpkg -l > /tmp/packages.list && update-initramfs -u -k all && update-grub"

// Install performs an atomic package install, per §4.8.
func (e *Engine) Install(pkg string) (*Deployment, error) {
	if !validPackageName(pkg) {
		return nil, ErrValidationFailed("invalid package name: " + pkg)
	}
	return e.transaction(fmt.Sprintf("%s %s", ActionInstall, pkg), func(stagedPath string) error {
		res, err := e.runChroot(stagedPath, fmt.Sprintf("dpkg -s %s", pkg))
		if err == nil && res.Success {
			return ErrAlreadyInstalled(pkg)
		}
		return nil
	}, fmt.Sprintf("apt update && apt install -y %s && apt autoremove -y && %s", pkg, chrootTrailer))
}

// Remove performs an atomic package removal, per §4.8.
func (e *Engine) Remove(pkg string) (*Deployment, error) {
	if !validPackageName(pkg) {
		return nil, ErrValidationFailed("invalid package name: " + pkg)
	}
	return e.transaction(fmt.Sprintf("%s %s", ActionRemove, pkg), func(stagedPath string) error {
		res, err := e.runChroot(stagedPath, fmt.Sprintf("dpkg -s %s", pkg))
		if err != nil || !res.Success {
			return ErrNotInstalled(pkg)
		}
		return nil
	}, fmt.Sprintf("apt remove -y %s && apt autoremove -y && %s", pkg, chrootTrailer))
}

// Update performs an atomic upgrade of every installed package, per §4.8.
func (e *Engine) Update() (*Deployment, error) {
	return e.transaction(ActionUpdate, nil,
		fmt.Sprintf(`apt update && apt upgrade -y -o Dpkg::Options::="--force-confold" && apt autoremove -y && %s`, chrootTrailer))
}

// Deploy rebuilds the current deployment as a new one with no package
// changes, per §4.8.
func (e *Engine) Deploy() (*Deployment, error) {
	return e.transaction(ActionDeploy, nil, chrootTrailer)
}

// runChroot executes script inside deployment via /bin/sh -c, the way §4.8
// runs package-manager commands under the chroot harness.
func (e *Engine) runChroot(deployment, script string) (CommandResult, error) {
	return e.runner.Capture("chroot", deployment, "/bin/sh", "-c", script)
}

// transaction implements the canonical 17-step sequence of §4.8, shared by
// install/remove/update/deploy. probe (if non-nil) runs after the chroot
// binds are mounted and before the trailer script; a non-nil error from it
// aborts the transaction with binds already unwound.
func (e *Engine) transaction(action string, probe func(stagedPath string) error, script string) (*Deployment, error) {
	if err := e.lock.Acquire(); err != nil {
		return nil, ErrConcurrentOperation(err)
	}
	defer e.lock.Release()

	current, err := e.validateSystem()
	if err != nil {
		return nil, err
	}

	staged, err := e.snapshots.Create(current, true)
	if err != nil {
		return nil, ErrSnapshotError("creating staged deployment", err)
	}

	if err := e.meta.WritePendingMarker(staged.Name); err != nil {
		e.abort(staged, err)
		return nil, ErrMetadataError("writing pending marker", err)
	}

	if err := e.chroot.Bind(staged.Path); err != nil {
		e.abort(staged, err)
		return nil, ErrMountError("binding chroot", err)
	}

	bindsActive := true
	unbind := func() error {
		if !bindsActive {
			return nil
		}
		bindsActive = false
		return e.chroot.Unbind(staged.Path)
	}

	if probe != nil {
		if err := probe(staged.Path); err != nil {
			unbind()
			e.abort(staged, err)
			return nil, err
		}
	}

	if res, err := e.runChroot(staged.Path, script); err != nil || !res.Success {
		stderr := ""
		if err == nil {
			stderr = res.Stderr
		}
		unbind()
		cmdErr := NewChrootCommandFailed("chroot command sequence failed for "+action, stderr, err)
		e.abort(staged, cmdErr)
		return nil, cmdErr
	}

	if err := unbind(); err != nil {
		e.abort(staged, err)
		return nil, ErrMountError("unbinding chroot", err)
	}

	kernel, err := e.detectKernel(staged.Path)
	if err != nil {
		e.abort(staged, err)
		return nil, err
	}

	if err := e.sanity.Check(staged.Path, kernel); err != nil {
		e.abort(staged, err)
		return nil, err
	}

	systemVersion, err := e.computeSystemVersion(staged.Path)
	if err != nil {
		e.abort(staged, err)
		return nil, err
	}

	if err := e.meta.WriteMeta(staged.Path, Metadata{
		Action:        action,
		Parent:        current.Name,
		Kernel:        kernel,
		SystemVersion: systemVersion,
		Status:        StatusReady,
		SchemaVersion: SchemaVersion,
	}); err != nil {
		e.abort(staged, err)
		return nil, ErrMetadataError("writing metadata", err)
	}

	if err := e.regenerateBootloader(staged.Path); err != nil {
		e.abort(staged, err)
		return nil, err
	}

	if err := e.snapshots.SetReadOnly(staged.Path, true); err != nil {
		e.abort(staged, err)
		return nil, ErrSnapshotError("sealing staged deployment", err)
	}

	if err := e.publish(staged.Path); err != nil {
		e.abort(staged, err)
		return nil, err
	}

	if err := e.meta.ClearPendingMarker(); err != nil {
		return nil, ErrMetadataError("clearing pending marker", err)
	}

	e.logger.Info("transaction complete", "action", action, "deployment", staged.Name)
	return e.loadDeployment(staged.Name)
}

// abort marks a staged deployment broken on a best-effort basis after any
// failure between snapshot creation and publish, writing a fresh broken
// record if the staged tree has none to update, and clears the pending
// marker. It never returns an error: the caller's own error is what
// propagates.
func (e *Engine) abort(staged *Deployment, cause error) {
	e.logger.Error("transaction aborted", "deployment", staged.Name, "cause", cause)
	reason := "transaction aborted: " + cause.Error()
	if err := e.meta.SetStatusBroken(staged.Path, reason); err != nil {
		if err := e.meta.WriteMeta(staged.Path, Metadata{Status: StatusBroken, RollbackReason: reason, SchemaVersion: SchemaVersion}); err != nil {
			e.logger.Warn("failed to mark staged deployment broken", "deployment", staged.Name, "error", err)
		}
	}
	if err := e.meta.ClearPendingMarker(); err != nil {
		e.logger.Warn("failed to clear pending marker", "deployment", staged.Name, "error", err)
	}
}

// publish sets staged as the default subvolume and atomically replaces the
// current symlink. This is the sole irreversible step of a transaction.
func (e *Engine) publish(stagedPath string) error {
	if err := e.snapshots.SetDefault(stagedPath); err != nil {
		return ErrSnapshotError("setting default subvolume", err)
	}
	return e.replaceCurrentSymlink(stagedPath)
}

// replaceCurrentSymlink atomically replaces the current symlink: it links
// a temporary name alongside the real one, then renames over it, so
// readers never observe a missing symlink.
func (e *Engine) replaceCurrentSymlink(target string) error {
	tmp := e.cfg.CurrentSymlink + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return ErrValidationFailed("creating temporary current symlink: " + err.Error())
	}
	if err := os.Rename(tmp, e.cfg.CurrentSymlink); err != nil {
		return ErrValidationFailed("replacing current symlink: " + err.Error())
	}
	return nil
}

// detectKernel parses `dpkg -l | grep linux-image` output inside the
// deployment, sorted by version, taking the newest.
func (e *Engine) detectKernel(deployment string) (string, error) {
	res, err := e.runChroot(deployment, "dpkg -l | grep linux-image | awk '{print $2}' | sort -V | tail -n1")
	if err != nil || !res.Success {
		return "", ErrSanityFailed("could not determine installed kernel package")
	}
	pkgName := strings.TrimSpace(res.Stdout)
	if pkgName == "" {
		return "", ErrSanityFailed("no linux-image package found")
	}
	const prefix = "linux-image-"
	if !strings.HasPrefix(pkgName, prefix) {
		return "", ErrSanityFailed("unexpected linux-image package name: " + pkgName)
	}
	return strings.TrimPrefix(pkgName, prefix), nil
}

// computeSystemVersion hashes /tmp/packages.list inside the deployment and
// then deletes it, so two deployments with identical installed packages
// produce byte-identical trees.
func (e *Engine) computeSystemVersion(deployment string) (string, error) {
	listPath := filepath.Join(deployment, "tmp", "packages.list")
	data, err := os.ReadFile(listPath)
	if err != nil {
		return "", ErrSanityFailed("reading package list: " + err.Error())
	}
	sum := sha256.Sum256(data)
	if err := os.Remove(listPath); err != nil {
		e.logger.Warn("failed to remove package list scratch file", "path", listPath, "error", err)
	}
	return hex.EncodeToString(sum[:]), nil
}

// regenerateBootloader recomputes the ready/booted candidate set —
// including the deployment currently being staged, whose metadata was just
// written as ready — and asks the Bootloader Writer to emit the fragment.
func (e *Engine) regenerateBootloader(stagedPath string) error {
	deployments, err := e.listDeployments()
	if err != nil {
		return err
	}
	var candidates []*Deployment
	for _, d := range deployments {
		if d.Meta.Status == StatusReady || d.Meta.Status == StatusBooted {
			candidates = append(candidates, d)
		}
	}
	if err := e.bootloader.Write(stagedPath, candidates); err != nil {
		return ErrValidationFailed("writing bootloader fragment: " + err.Error())
	}
	return nil
}
