package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	poll := "poll-" + time.Now().Format(time.RFC3339Nano)

	got, err := s.LoadTally(ctx, poll)
	if err != nil || got != (Tally{}) {
		t.Fatalf("LoadTally(unsaved) = %+v, %v", got, err)
	}
	if err := s.SaveTally(ctx, poll, Tally{Yes: 3, No: 1}); err != nil {
		t.Fatalf("SaveTally: %v", err)
	}
	if err := s.SaveTally(ctx, poll, Tally{Yes: 4, No: 1}); err != nil {
		t.Fatalf("SaveTally overwrite: %v", err)
	}
	got, err = s.LoadTally(ctx, poll)
	if err != nil || got != (Tally{Yes: 4, No: 1}) {
		t.Errorf("LoadTally = %+v, %v", got, err)
	}

	id := "ev-" + time.Now().Format(time.RFC3339Nano)
	if seen, err := s.Seen(ctx, id); err != nil || seen {
		t.Errorf("first Seen = %v, %v", seen, err)
	}
	if seen, err := s.Seen(ctx, id); err != nil || !seen {
		t.Errorf("second Seen = %v, %v", seen, err)
	}
	if err := s.Forget(ctx, id); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if seen, err := s.Seen(ctx, id); err != nil || seen {
		t.Errorf("Seen after Forget = %v, %v", seen, err)
	}
	if _, err := s.PruneSeen(ctx, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("PruneSeen: %v", err)
	}
	if seen, _ := s.Seen(ctx, id); seen {
		t.Error("id survived prune")
	}
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, openTemp(t))
}

func TestTallySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "votes.db")
	ctx := context.Background()

	d, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SaveTally(ctx, "pluto", Tally{Yes: 7, No: 2}); err != nil {
		t.Fatal(err)
	}
	d.Close()

	d, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	got, err := d.LoadTally(ctx, "pluto")
	if err != nil || got != (Tally{Yes: 7, No: 2}) {
		t.Errorf("after reopen = %+v, %v", got, err)
	}
}

func TestSQLiteDSNKeepsQuery(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"votes.db", "votes.db?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000"},
		{"file:votes.db?cache=shared", "file:votes.db?cache=shared&_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000"},
	}
	for _, tt := range tests {
		if got := sqliteDSN(tt.path); got != tt.want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}

	path := filepath.Join(t.TempDir(), "opts.db")
	d, err := Open(path + "?_txlock=immediate")
	if err != nil {
		t.Fatalf("Open with query: %v", err)
	}
	defer d.Close()
	if err := d.SaveTally(context.Background(), "pluto", Tally{Yes: 1}); err != nil {
		t.Fatalf("SaveTally: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database not created at %s: %v", path, err)
	}
}

func TestOpenStorePicksDriver(t *testing.T) {
	s, err := OpenStore(context.Background(), filepath.Join(t.TempDir(), "x.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*DB); !ok {
		t.Errorf("OpenStore(path) = %T, want *DB", s)
	}
}

// Set NOSTRBOT_TEST_POSTGRES to a postgres:// URL to run against a live server.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("NOSTRBOT_TEST_POSTGRES")
	if url == "" {
		t.Skip("NOSTRBOT_TEST_POSTGRES not set")
	}
	s, err := OpenStore(context.Background(), url)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*PGStore); !ok {
		t.Fatalf("OpenStore(postgres url) = %T", s)
	}
	exerciseStore(t, s)
}
