package hammer

import (
	"os"
	"path/filepath"
	"testing"
)

// seedDeployment creates and seals an additional ready/booted deployment
// directly through the fakes, bypassing the transaction engine, so
// switch/rollback/retention tests can set up multi-deployment histories
// cheaply.
func seedDeployment(t *testing.T, snapshots *fakeSnapshots, meta *fakeMeta, status Status) *Deployment {
	t.Helper()
	d, err := snapshots.Create(&Deployment{Name: "parent"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := snapshots.SetReadOnly(d.Path, true); err != nil {
		t.Fatal(err)
	}
	if err := meta.WriteMeta(d.Path, Metadata{
		Action: ActionDeploy, Kernel: "6.1.0-amd64", SystemVersion: "v", Status: status,
	}); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestSwitch_ToNamedDeployment(t *testing.T) {
	engine, snapshots, meta, _, _, _, _, currentSymlink := newTestEngine(t)
	older := seedDeployment(t, snapshots, meta, StatusReady)

	d, err := engine.Switch(older.Name)
	if err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	if d.Name != older.Name {
		t.Errorf("switched to %s, want %s", d.Name, older.Name)
	}
	if d.Meta.Status != StatusBooted {
		t.Errorf("target status = %s, want booted", d.Meta.Status)
	}

	target, _ := os.Readlink(currentSymlink)
	if filepath.Base(target) != older.Name {
		t.Errorf("current symlink = %s, want %s", filepath.Base(target), older.Name)
	}
}

func TestSwitchThenBackRestoresOriginalAndMarksOutgoingPrevious(t *testing.T) {
	engine, snapshots, meta, _, _, _, _, _ := newTestEngine(t)
	seed := seedDeployment(t, snapshots, meta, StatusReady)

	original, err := engine.currentName()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Switch(seed.Name); err != nil {
		t.Fatalf("switch to B error = %v", err)
	}
	if _, err := engine.Switch(original); err != nil {
		t.Fatalf("switch back to A error = %v", err)
	}

	current, err := engine.currentName()
	if err != nil {
		t.Fatal(err)
	}
	if current != original {
		t.Errorf("current = %s, want %s", current, original)
	}

	seedMeta, err := meta.ReadMeta(seed.Path)
	if err != nil {
		t.Fatal(err)
	}
	if seedMeta.Status != StatusPrevious {
		t.Errorf("seed status = %s, want previous", seedMeta.Status)
	}
	if seedMeta.RollbackReason != "manual" {
		t.Errorf("seed rollback reason = %q, want manual", seedMeta.RollbackReason)
	}
}

func TestRollback_NotEnoughCandidates(t *testing.T) {
	engine, _, _, _, _, _, _, _ := newTestEngine(t)

	_, err := engine.Rollback(1)
	herr, ok := err.(*Error)
	if !ok || herr.Kind != KindValidationFailed {
		t.Fatalf("error = %v, want KindValidationFailed", err)
	}
}

func TestRollback_OneStep(t *testing.T) {
	engine, snapshots, meta, _, _, _, _, _ := newTestEngine(t)
	seedDeployment(t, snapshots, meta, StatusReady)

	d, err := engine.Rollback(1)
	if err != nil {
		t.Fatalf("Rollback(1) error = %v", err)
	}
	if d.Meta.Status != StatusBooted {
		t.Errorf("status = %s, want booted", d.Meta.Status)
	}
}
