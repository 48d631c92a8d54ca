package historyindex_test

import (
	"testing"
	"time"

	"github.com/HackerOS-Linux-System/hammer/internal/hammer"
	"github.com/HackerOS-Linux-System/hammer/internal/historyindex"
)

func TestRebuildThenNewestOrdersDescendingByCreated(t *testing.T) {
	idx, err := historyindex.New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer idx.Close()

	entries := []*hammer.HistoryEntry{
		{Name: "hammer-a", Created: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Action: "deploy", Status: hammer.StatusPrevious},
		{Name: "hammer-b", Created: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), Action: "deploy", Status: hammer.StatusBooted, IsCurrent: true},
		{Name: "hammer-c", Created: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), Action: "install vim", Status: hammer.StatusReady},
	}
	if err := idx.Rebuild(entries); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	got, err := idx.Newest()
	if err != nil {
		t.Fatalf("Newest() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
	wantOrder := []string{"hammer-b", "hammer-c", "hammer-a"}
	for i, name := range wantOrder {
		if got[i].Name != name {
			t.Errorf("got[%d] = %s, want %s", i, got[i].Name, name)
		}
	}
	if !got[0].IsCurrent {
		t.Error("newest entry should be marked current")
	}
}

func TestRebuildReplacesPreviousContents(t *testing.T) {
	idx, err := historyindex.New()
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	first := []*hammer.HistoryEntry{{Name: "hammer-a", Created: time.Now(), Status: hammer.StatusBooted}}
	if err := idx.Rebuild(first); err != nil {
		t.Fatal(err)
	}

	second := []*hammer.HistoryEntry{{Name: "hammer-b", Created: time.Now(), Status: hammer.StatusBooted}}
	if err := idx.Rebuild(second); err != nil {
		t.Fatal(err)
	}

	got, err := idx.Newest()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "hammer-b" {
		t.Fatalf("got = %v, want only hammer-b", got)
	}
}

func TestNewestOnEmptyIndexReturnsNoEntries(t *testing.T) {
	idx, err := historyindex.New()
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	got, err := idx.Newest()
	if err != nil {
		t.Fatalf("Newest() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got = %v, want empty", got)
	}
}

func TestCloseIsSafeToCallTwice(t *testing.T) {
	idx, err := historyindex.New()
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
