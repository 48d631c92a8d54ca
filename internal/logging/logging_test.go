package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HackerOS-Linux-System/hammer/internal/logging"
)

func TestNewWritesTabSeparatedRecordsToLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "hammer-core.log")
	l, err := logging.New(path, "op-20250101000000")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer l.Close()

	l.Info("installed package", "package", "vim", "deployment", "hammer-20250101000000")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	line := strings.TrimRight(string(content), "\n")
	fields := strings.Split(line, "\t")
	if len(fields) < 6 {
		t.Fatalf("line = %q, want at least 6 tab-separated fields", line)
	}
	if fields[1] != "info" {
		t.Errorf("level field = %q, want info", fields[1])
	}
	if fields[2] != "op-20250101000000" {
		t.Errorf("opID field = %q", fields[2])
	}
	if fields[3] != "installed package" {
		t.Errorf("message field = %q", fields[3])
	}
	// key=value pairs are sorted alphabetically: deployment before package.
	if !strings.HasPrefix(fields[4], "deployment=") || !strings.HasPrefix(fields[5], "package=") {
		t.Errorf("key=value fields out of order: %v", fields[4:])
	}
}

func TestNewCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "hammer-core.log")
	l, err := logging.New(path, "op")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer l.Close()
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("parent directory not created: %v", err)
	}
}

func TestNewDiscardNeverPanicsAndCloseIsNoOp(t *testing.T) {
	l := logging.NewDiscard()
	l.Debug("noop")
	l.Warn("noop", "key", "value")
	l.Error("noop")
	if err := l.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}
