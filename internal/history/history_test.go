package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cncverse/internal/media"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entries := []media.HistoryEntry{
		{Provider: "doflix", ID: "movie,11", Title: "Dune", EpisodeData: "11", EpisodeLabel: "Dune", WatchedAt: 100},
		{Provider: "live", ID: "wc-final", Title: "India vs Australia", WatchedAt: 300},
		{Provider: "iptv", ID: "3", Title: "News One", LinkURL: "https://cdn.test/news.m3u8", WatchedAt: 200},
	}
	for _, e := range entries {
		if err := s.Add(ctx, e); err != nil {
			t.Fatalf("Add(%s) error: %v", e.ID, err)
		}
	}

	got, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	wantOrder := []string{"wc-final", "3", "movie,11"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("entry[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}
	if got[1].LinkURL != "https://cdn.test/news.m3u8" || got[2].EpisodeData != "11" {
		t.Errorf("fields not round-tripped: %+v", got)
	}
}

func TestAddUpdatesExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := media.HistoryEntry{Provider: "doflix", ID: "tvseries,21", Title: "Shogun", EpisodeData: "21|1|1", EpisodeLabel: "S01E01 Anjin", WatchedAt: 100}
	if err := s.Add(ctx, e); err != nil {
		t.Fatal(err)
	}
	e.EpisodeData = "21|1|2"
	e.EpisodeLabel = "S01E02 Servants of Two Masters"
	e.WatchedAt = 200
	if err := s.Add(ctx, e); err != nil {
		t.Fatal(err)
	}
	// Same id under another provider is a separate entry.
	if err := s.Add(ctx, media.HistoryEntry{Provider: "cinetv", ID: "tvseries,21", Title: "Other", WatchedAt: 50}); err != nil {
		t.Fatal(err)
	}

	got, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries after update, got %d", len(got))
	}
	if got[0].EpisodeData != "21|1|2" || got[0].WatchedAt != 200 {
		t.Errorf("updated entry = %+v", got[0])
	}
}

func TestAddStampsTime(t *testing.T) {
	s := openTestStore(t)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if err := s.Add(context.Background(), media.HistoryEntry{Provider: "iptv", ID: "1", Title: "One"}); err != nil {
		t.Fatal(err)
	}
	e, err := s.Find(context.Background(), "iptv", "1")
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if e.WatchedAt != fixed.Unix() {
		t.Errorf("WatchedAt = %d, want %d", e.WatchedAt, fixed.Unix())
	}
}

func TestAddRejectsIncomplete(t *testing.T) {
	s := openTestStore(t)
	for _, e := range []media.HistoryEntry{{ID: "1"}, {Provider: "iptv"}} {
		if err := s.Add(context.Background(), e); err == nil {
			t.Errorf("Add(%+v) succeeded", e)
		}
	}
}

func TestFindAndRemove(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Add(ctx, media.HistoryEntry{Provider: "iptv", ID: "a", Title: "A", WatchedAt: 1})
	s.Add(ctx, media.HistoryEntry{Provider: "iptv", ID: "b", Title: "B", WatchedAt: 2})

	if e, err := s.Find(ctx, "iptv", "a"); err != nil || e.Title != "A" {
		t.Fatalf("Find(a) = %+v, %v", e, err)
	}

	if err := s.Remove(ctx, "iptv", "a"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if _, err := s.Find(ctx, "iptv", "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Find after remove: err = %v, want ErrNotFound", err)
	}
	if err := s.Remove(ctx, "iptv", "missing"); err != nil {
		t.Errorf("Remove(missing) error: %v", err)
	}

	entries, _ := s.List(ctx)
	if len(entries) != 1 || entries[0].ID != "b" {
		t.Errorf("remaining = %+v", entries)
	}
}

func TestOpenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	s.Add(ctx, media.HistoryEntry{Provider: "live", ID: "x", Title: "X", WatchedAt: 5})
	s.Close()

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Find(ctx, "live", "x"); err != nil {
		t.Errorf("entry lost after reopen: %v", err)
	}
}

func TestOpenDefaultPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmpDir)

	s, err := Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	s.Close()
	if _, err := os.Stat(filepath.Join(tmpDir, "cncverse", "history.db")); err != nil {
		t.Errorf("database not created at default path: %v", err)
	}
}

func TestFormatForDisplay(t *testing.T) {
	at := time.Date(2024, 5, 6, 12, 0, 0, 0, time.Local).Unix()
	entries := []media.HistoryEntry{
		{Provider: "doflix", Title: "Dune", EpisodeLabel: "Dune", WatchedAt: at},
		{Provider: "doflix", Title: "Shogun", EpisodeLabel: "S01E05 Broken to the Fist"},
	}

	items := FormatForDisplay(entries)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0] != "[doflix] Dune (2024-05-06)" {
		t.Errorf("movie display = %q", items[0])
	}
	if items[1] != "[doflix] Shogun - S01E05 Broken to the Fist" {
		t.Errorf("series display = %q", items[1])
	}
}
