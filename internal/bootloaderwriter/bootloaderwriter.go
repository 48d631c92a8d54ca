// Package bootloaderwriter implements hammer.BootloaderWriter: it
// regenerates the GRUB menu fragment inside a staged deployment from the
// current deployment history.
package bootloaderwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/HackerOS-Linux-System/hammer/internal/hammer"
)

const fragmentPath = "etc/grub.d/25_hammer_entries"

// Writer emits the ordered bootloader menu fragment.
type Writer struct {
	snapshots hammer.SnapshotStore
	cap       int
}

var _ hammer.BootloaderWriter = (*Writer)(nil)

// New constructs a Writer. cap is the maximum number of entries per
// fragment (§4.7: 5).
func New(snapshots hammer.SnapshotStore, cap int) *Writer {
	if cap <= 0 {
		cap = 5
	}
	return &Writer{snapshots: snapshots, cap: cap}
}

// Write takes up to cap of the given candidates, descending by Created,
// without filtering them by Status, and writes the fragment at <deployment>/etc/grub.d/25_hammer_entries.
func (w *Writer) Write(deployment string, candidates []*hammer.Deployment) error {
	uuid, err := w.snapshots.GetUUID()
	if err != nil {
		return fmt.Errorf("discovering filesystem uuid: %w", err)
	}

	ordered := make([]*hammer.Deployment, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Meta.Created > ordered[j].Meta.Created
	})

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("exec tail -n +3 $0\n")

	count := 0
	for _, d := range ordered {
		if count >= w.cap {
			break
		}
		if d.Meta.Kernel == "" {
			continue
		}
		writeEntry(&b, d.Name, d.Meta.Kernel, uuid)
		count++
	}

	path := filepath.Join(deployment, fragmentPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating grub.d directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o755); err != nil {
		return fmt.Errorf("writing bootloader fragment: %w", err)
	}
	return nil
}

func writeEntry(b *strings.Builder, name, kernel, uuid string) {
	fmt.Fprintf(b, "menuentry 'HammerOS (%s)' --class hammeros {\n", name)
	b.WriteString("  insmod gzio; insmod part_gpt; insmod btrfs\n")
	fmt.Fprintf(b, "  search --no-floppy --fs-uuid --set=root %s\n", uuid)
	fmt.Fprintf(b, "  linux /deployments/%s/boot/vmlinuz-%s root=UUID=%s rw rootflags=subvol=deployments/%s quiet splash $vt_handoff\n",
		name, kernel, uuid, name)
	fmt.Fprintf(b, "  initrd /deployments/%s/boot/initrd.img-%s\n", name, kernel)
	b.WriteString("}\n")
}
