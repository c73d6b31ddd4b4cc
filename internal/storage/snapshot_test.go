package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/replacementbot/internal/schedule"
)

func strPtr(s string) *string { return &s }

func testSnapshot(date string) *schedule.Snapshot {
	return &schedule.Snapshot{
		Date:    strPtr(date),
		RawDate: strPtr("Замены на " + date),
		Groups: map[string][]schedule.Record{
			"101": {
				{Slot: "1", OriginalSubject: "Физика", Teacher: "Петров П.П.", NewSubject: "Химия", Classroom: "204"},
				{Slot: "3", OriginalSubject: "История", Status: schedule.StatusCancelled},
			},
		},
	}
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	t.Parallel()
	store, err := NewSnapshotStore(filepath.Join(t.TempDir(), "data", "replacements.json"))
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}

	got, err := store.Load()
	if err != nil || got != nil {
		t.Fatalf("Load() on empty store = %v, %v", got, err)
	}

	want := testSnapshot("2024-03-14")
	want.Groups["999"] = nil
	if err := store.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err = store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := got.Groups["999"]; ok {
		t.Fatal("empty group was persisted")
	}
	if Differs(got, want) {
		t.Fatalf("round trip differs: %+v", got)
	}

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestSnapshotStoreReplaces(t *testing.T) {
	t.Parallel()
	store, err := NewSnapshotStore(filepath.Join(t.TempDir(), "replacements.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(testSnapshot("2024-03-14")); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(testSnapshot("2024-03-15")); err != nil {
		t.Fatal(err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.DateValue() != "2024-03-15" {
		t.Fatalf("date = %q", got.DateValue())
	}
}

func TestSnapshotStoreCorrupt(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "replacements.json")
	if err := os.WriteFile(path, []byte(`{"date": "2024-`), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := NewSnapshotStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrSnapshotCorrupt) {
		t.Fatalf("Load() error = %v, want ErrSnapshotCorrupt", err)
	}
}

func TestSnapshotStoreFailedWriteKeepsOld(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "replacements.json")
	store, err := NewSnapshotStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(testSnapshot("2024-03-14")); err != nil {
		t.Fatal(err)
	}

	// A directory in place of the target makes the rename fail.
	blocked, err := NewSnapshotStore(filepath.Join(dir, "blocked"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "blocked", "child"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := blocked.Save(testSnapshot("2024-03-15")); err == nil {
		t.Fatal("expected Save to fail")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("temp file left behind after failed save: %v", entries)
	}

	got, err := store.Load()
	if err != nil || got.DateValue() != "2024-03-14" {
		t.Fatalf("previous snapshot lost: %v, %v", got, err)
	}
}

func TestDiffers(t *testing.T) {
	t.Parallel()
	a := testSnapshot("2024-03-14")
	b := testSnapshot("2024-03-14")
	if Differs(a, a) || Differs(a, b) || Differs(b, a) {
		t.Fatal("equal snapshots reported as different")
	}
	if DateDiffers(a, b) {
		t.Fatal("equal dates reported as different")
	}

	b.Groups["101"][0].Classroom = "205"
	if !Differs(a, b) || !Differs(b, a) {
		t.Fatal("content change not detected")
	}
	if DateDiffers(a, b) {
		t.Fatal("content-only change reported as date change")
	}

	c := testSnapshot("2024-03-15")
	if !DateDiffers(a, c) || !DateDiffers(c, a) {
		t.Fatal("date change not detected")
	}
	if !Differs(nil, a) || !DateDiffers(nil, a) || Differs(nil, nil) {
		t.Fatal("nil handling is wrong")
	}
}

func TestSnapshotCache(t *testing.T) {
	t.Parallel()
	store, err := NewSnapshotStore(filepath.Join(t.TempDir(), "replacements.json"))
	if err != nil {
		t.Fatal(err)
	}
	c := NewSnapshotCache(store, time.Minute)

	if snap, err := c.Load(); err != nil || snap != nil {
		t.Fatalf("Load() on empty store = %v, %v", snap, err)
	}
	if err := c.Save(testSnapshot("2024-03-14")); err != nil {
		t.Fatal(err)
	}
	first, err := c.Load()
	if err != nil || first.DateValue() != "2024-03-14" {
		t.Fatalf("Load() = %v, %v", first, err)
	}

	// Writes behind the cache's back are not visible until invalidation.
	if err := store.Save(testSnapshot("2024-03-15")); err != nil {
		t.Fatal(err)
	}
	if again, _ := c.Load(); again != first {
		t.Fatal("cached snapshot was not reused")
	}
	c.Invalidate()
	if fresh, _ := c.Load(); fresh.DateValue() != "2024-03-15" {
		t.Fatalf("date after invalidate = %q", fresh.DateValue())
	}
}
