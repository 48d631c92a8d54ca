package lockfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/HackerOS-Linux-System/hammer/internal/hammer"
	"github.com/HackerOS-Linux-System/hammer/internal/lockfile"
)

func TestAcquireThenReleaseRemovesLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hammer.lock")
	m := lockfile.New(path, hammer.NewNopLogger())

	if err := m.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("lock file not created: %v", err)
	}

	m.Release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("lock file still present after Release(): %v", err)
	}
}

func TestAcquireFailsWhenAlreadyHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hammer.lock")
	first := lockfile.New(path, hammer.NewNopLogger())
	second := lockfile.New(path, hammer.NewNopLogger())

	if err := first.Acquire(); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer first.Release()

	if err := second.Acquire(); err == nil {
		t.Fatal("expected second Acquire() to fail while first holds the lock")
	}
}

func TestReleaseWithoutAcquireIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hammer.lock")
	m := lockfile.New(path, hammer.NewNopLogger())
	m.Release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Release() on an unheld lock created a file")
	}
}

func TestAcquireAfterReleaseSucceedsAgain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hammer.lock")
	m := lockfile.New(path, hammer.NewNopLogger())

	if err := m.Acquire(); err != nil {
		t.Fatal(err)
	}
	m.Release()

	if err := m.Acquire(); err != nil {
		t.Fatalf("re-Acquire() after Release() error = %v", err)
	}
	m.Release()
}
