package hammer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// fakeRunner plays back canned CommandResults keyed by the joined argv, and
// supports simple side effects for commands the engine expects to have
// mutated the filesystem (the chroot trailer writing /tmp/packages.list).
type fakeRunner struct {
	results map[string]CommandResult
	calls   []string

	// fstype is what findmnt reports for the queried root; defaults to
	// "btrfs" so existing tests need not care about the check.
	fstype string

	// packageListContent, if set, is written as /tmp/packages.list by the
	// chroot trailer instead of the fixed default, so tests can vary the
	// installed-package set system_version is hashed from.
	packageListContent string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{results: make(map[string]CommandResult), fstype: "btrfs"}
}

// on registers a canned result keyed by the script portion of a chroot
// invocation (argv[4:]), ignoring the staged deployment path (argv[1]) so
// callers can set expectations before the staged path is known.
func (r *fakeRunner) on(script string, res CommandResult) {
	r.results[script] = res
}

func (r *fakeRunner) Capture(argv ...string) (CommandResult, error) {
	r.calls = append(r.calls, strings.Join(argv, " "))

	if len(argv) > 0 && argv[0] == "findmnt" {
		return CommandResult{Success: true, Stdout: r.fstype + "\n"}, nil
	}

	if len(argv) >= 5 && argv[0] == "chroot" {
		if res, ok := r.results[argv[4]]; ok {
			return res, nil
		}
	}

	// Default: any "chroot <dir> /bin/sh -c <script>" containing the
	// packages.list trailer writes a deterministic package list, so
	// computeSystemVersion has something real to hash.
	if len(argv) >= 5 && argv[0] == "chroot" && strings.Contains(argv[4], "packages.list") {
		dir := argv[1]
		content := r.packageListContent
		if content == "" {
			content = "ii linux-image-6.1.0-amd64\n"
		}
		if err := os.MkdirAll(filepath.Join(dir, "tmp"), 0o755); err == nil {
			_ = os.WriteFile(filepath.Join(dir, "tmp", "packages.list"), []byte(content), 0o644)
		}
		return CommandResult{Success: true, Stdout: "linux-image-6.1.0-amd64\n"}, nil
	}

	// Default: the kernel-detection pipeline returns a fixed package name.
	if len(argv) >= 5 && argv[0] == "chroot" && strings.Contains(argv[4], "linux-image") {
		return CommandResult{Success: true, Stdout: "linux-image-6.1.0-amd64\n"}, nil
	}

	// Default: an unregistered "dpkg -s <pkg>" probe reports the package
	// absent, matching a fresh install's starting state.
	if len(argv) >= 5 && argv[0] == "chroot" && strings.HasPrefix(argv[4], "dpkg -s ") {
		return CommandResult{Success: false}, nil
	}

	return CommandResult{Success: true}, nil
}

func (r *fakeRunner) Inherit(argv ...string) error { return nil }

// fakeLock never contends unless told to.
type fakeLock struct {
	held      bool
	failAcquire bool
	releases  int
}

func (l *fakeLock) Acquire() error {
	if l.failAcquire || l.held {
		return fmt.Errorf("lock held")
	}
	l.held = true
	return nil
}

func (l *fakeLock) Release() {
	l.held = false
	l.releases++
}

// fakeSnapshots is an in-memory SnapshotStore backed by real temp
// directories so the engine's direct filesystem calls (packages.list,
// symlink targets) resolve to something real.
type fakeSnapshots struct {
	dir        string
	readOnly   map[string]bool
	nextSuffix int
	uuid       string
	deleted    []string
}

func newFakeSnapshots(dir string) *fakeSnapshots {
	return &fakeSnapshots{dir: dir, readOnly: make(map[string]bool), uuid: "fs-uuid-1234"}
}

func (s *fakeSnapshots) Create(src *Deployment, writable bool) (*Deployment, error) {
	s.nextSuffix++
	name := fmt.Sprintf("hammer-2025010100%04d", s.nextSuffix)
	path := filepath.Join(s.dir, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	s.readOnly[path] = !writable
	return &Deployment{Name: name, Path: path}, nil
}

func (s *fakeSnapshots) Delete(path string) error {
	s.deleted = append(s.deleted, path)
	return os.RemoveAll(path)
}

func (s *fakeSnapshots) SetDefault(path string) error { return nil }

func (s *fakeSnapshots) SetReadOnly(path string, ro bool) error {
	s.readOnly[path] = ro
	return nil
}

func (s *fakeSnapshots) SetReadOnlyRecursive(path string, ro bool) error {
	return s.SetReadOnly(path, ro)
}

func (s *fakeSnapshots) GetID(path string) (string, error) { return "256", nil }

func (s *fakeSnapshots) IsReadOnly(path string) (bool, error) { return s.readOnly[path], nil }

func (s *fakeSnapshots) GetUUID() (string, error) { return s.uuid, nil }

func (s *fakeSnapshots) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "hammer-") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// fakeChroot records bind/unbind calls without touching the filesystem.
type fakeChroot struct {
	bound      []string
	unbound    []string
	failBind   bool
	failUnbind bool
}

func (c *fakeChroot) Bind(target string) error {
	if c.failBind {
		return fmt.Errorf("bind failed")
	}
	c.bound = append(c.bound, target)
	return nil
}

func (c *fakeChroot) Unbind(target string) error {
	if c.failUnbind {
		return fmt.Errorf("unbind failed")
	}
	c.unbound = append(c.unbound, target)
	return nil
}

// fakeMeta is an in-memory MetadataStore keyed by deployment path.
type fakeMeta struct {
	records map[string]*Metadata
	marker  *PendingMarker
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{records: make(map[string]*Metadata)}
}

func (m *fakeMeta) WriteMeta(path string, meta Metadata) error {
	clone := meta
	if clone.Created == "" {
		clone.Created = "2025-01-01T00:00:00Z"
	}
	m.records[path] = &clone
	return nil
}

func (m *fakeMeta) ReadMeta(path string) (*Metadata, error) {
	rec, ok := m.records[path]
	if !ok {
		return nil, fmt.Errorf("no metadata for %s", path)
	}
	clone := *rec
	return &clone, nil
}

func (m *fakeMeta) UpdateMeta(path string, partial Metadata) error {
	rec, ok := m.records[path]
	if !ok {
		return fmt.Errorf("no metadata for %s", path)
	}
	if partial.Status != "" {
		rec.Status = partial.Status
	}
	if partial.RollbackReason != "" {
		rec.RollbackReason = partial.RollbackReason
	}
	if partial.Action != "" {
		rec.Action = partial.Action
	}
	return nil
}

func (m *fakeMeta) SetStatusBroken(path string, reason string) error {
	return m.UpdateMeta(path, Metadata{Status: StatusBroken, RollbackReason: reason})
}

func (m *fakeMeta) SetStatusBooted(path string) error {
	return m.UpdateMeta(path, Metadata{Status: StatusBooted})
}

func (m *fakeMeta) WritePendingMarker(deployment string) error {
	m.marker = &PendingMarker{Deployment: deployment}
	return nil
}

func (m *fakeMeta) ReadPendingMarker() (*PendingMarker, error) {
	return m.marker, nil
}

func (m *fakeMeta) ClearPendingMarker() error {
	m.marker = nil
	return nil
}

// fakeSanity always passes unless told to fail.
type fakeSanity struct {
	fail bool
}

func (s *fakeSanity) Check(deployment string, kernel string) error {
	if s.fail {
		return ErrSanityFailed("staged deployment missing kernel image")
	}
	return nil
}

// fakeBootloader records every Write call.
type fakeBootloader struct {
	writes int
}

func (b *fakeBootloader) Write(deployment string, candidates []*Deployment) error {
	b.writes++
	return nil
}

// fakeIndex is a trivial in-memory HistoryIndex.
type fakeIndex struct {
	entries []*HistoryEntry
}

func (i *fakeIndex) Rebuild(entries []*HistoryEntry) error {
	i.entries = entries
	return nil
}

func (i *fakeIndex) Newest() ([]*HistoryEntry, error) {
	out := make([]*HistoryEntry, len(i.entries))
	for idx, e := range i.entries {
		out[len(i.entries)-1-idx] = e
	}
	return out, nil
}

func (i *fakeIndex) Close() error { return nil }

// fakeIDGen returns deterministic, incrementing suffixes.
type fakeIDGen struct{ n int }

func (g *fakeIDGen) New() string {
	g.n++
	return fmt.Sprintf("dup%d", g.n)
}

// fixedClock returns a constant time.
type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
