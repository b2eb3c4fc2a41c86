package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openMemory(t *testing.T, opts ...LedgerOption) *Ledger {
	t.Helper()
	l, err := Open(MemoryPath, opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	l := openMemory(t, WithNowFunc(func() time.Time { return now }))

	entries := []Entry{
		{Item: "rg", Status: "installed", Version: "14.0.0", Path: "/bin/rg"},
		{Item: "fd", Status: "failed", Error: "no match found"},
		{Item: "rg", Status: "installed", Version: "14.1.0", PreviousVersion: "14.0.0", Path: "/bin/rg"},
	}
	for _, e := range entries {
		if err := l.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := l.List(ctx, "rg", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List(rg) = %d entries, want 2", len(got))
	}
	if got[0].Version != "14.1.0" || got[0].PreviousVersion != "14.0.0" {
		t.Errorf("newest entry = %+v", got[0])
	}
	if !got[0].At.Equal(now) {
		t.Errorf("At = %v, want %v", got[0].At, now)
	}

	all, err := l.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 || all[1].Item != "fd" || all[1].Error != "no match found" {
		t.Errorf("List(all) = %+v", all)
	}
}

func TestListLimit(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t)
	for i := 0; i < 5; i++ {
		if err := l.Record(ctx, Entry{Item: "bat", Status: "installed"}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := l.List(ctx, "bat", 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 || got[0].ID <= got[1].ID {
		t.Errorf("List(limit 2) = %+v, want the two newest", got)
	}
}

func TestRecordKeepsExplicitTimestamp(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t)
	at := time.Date(2025, 12, 24, 8, 30, 0, 0, time.UTC)
	if err := l.Record(ctx, Entry{Item: "x", Status: "installed", At: at}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	got, _ := l.List(ctx, "x", 1)
	if len(got) != 1 || !got[0].At.Equal(at) {
		t.Errorf("List() = %+v, want At %v", got, at)
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t)
	for _, item := range []string{"a", "a", "a", "b", "b"} {
		if err := l.Record(ctx, Entry{Item: item, Status: "installed"}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	removed, err := l.Prune(ctx, 1)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("Prune() removed %d, want 3", removed)
	}
	all, _ := l.List(ctx, "", 0)
	if len(all) != 2 {
		t.Errorf("remaining entries = %d, want 2", len(all))
	}
}

func TestOpenFileCreatesParentAndPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "history.db")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := l.Record(ctx, Entry{Item: "rg", Status: "installed", Version: "1"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	l.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file missing: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reopened.Close()
	got, err := reopened.List(ctx, "rg", 0)
	if err != nil || len(got) != 1 {
		t.Errorf("List() = %v, %v; want the persisted entry", got, err)
	}
}

func TestOpenFailsUnderFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Open(filepath.Join(file, "history.db")); !errors.Is(err, ErrHistoryOpen) {
		t.Errorf("Open() error = %v, want ErrHistoryOpen", err)
	}
}
