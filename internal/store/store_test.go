package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tern-lang/tern/internal/profile"
)

func testSnapshot(session string, at time.Time) *profile.Snapshot {
	return &profile.Snapshot{
		Version:   profile.SnapshotVersion,
		Timestamp: at,
		SessionID: session,
		ExecutionProfiles: []profile.ExecEntry{
			{Key: "fib", Record: profile.ExecSnapshot{
				Count: 10, Total: 5000, Min: 100, Max: 900, Last: 450, Samples: 3,
			}},
		},
	}
}

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='snapshots'",
	).Scan(&name)
	if err != nil {
		t.Errorf("snapshots table not found after idempotent opens: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := testSnapshot("sess-1", at)
	if err := s.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot() failed: %v", err)
	}

	got, err := s.LoadSnapshot(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if got.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want %q", got.SessionID, "sess-1")
	}
	if !got.Timestamp.Equal(at) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, at)
	}
	if len(got.ExecutionProfiles) != 1 || got.ExecutionProfiles[0].Key != "fib" {
		t.Errorf("ExecutionProfiles = %+v, want one entry keyed fib", got.ExecutionProfiles)
	}
	if got.ExecutionProfiles[0].Record.Count != 10 {
		t.Errorf("Count = %d, want 10", got.ExecutionProfiles[0].Record.Count)
	}
}

func TestSaveReplacesSameSession(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.SaveSnapshot(ctx, testSnapshot("sess-1", at)); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	updated := testSnapshot("sess-1", at.Add(time.Hour))
	updated.ExecutionProfiles[0].Record.Count = 99
	if err := s.SaveSnapshot(ctx, updated); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}

	got, err := s.LoadSnapshot(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if got.ExecutionProfiles[0].Record.Count != 99 {
		t.Errorf("Count = %d, want the replacing snapshot's 99",
			got.ExecutionProfiles[0].Record.Count)
	}
}

func TestLoadMissingSession(t *testing.T) {
	s := openTemp(t)

	_, err := s.LoadSnapshot(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := s.SaveSnapshot(ctx, testSnapshot(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("save %q failed: %v", id, err)
		}
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() failed: %v", err)
	}
	want := []string{"c", "b", "a"}
	if len(sessions) != len(want) {
		t.Fatalf("got %d sessions, want %d", len(sessions), len(want))
	}
	for i := range want {
		if sessions[i].SessionID != want[i] {
			t.Errorf("sessions[%d] = %q, want %q", i, sessions[i].SessionID, want[i])
		}
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		if err := s.SaveSnapshot(ctx, testSnapshot(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("save %q failed: %v", id, err)
		}
	}

	n, err := s.Prune(ctx, 2)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("pruned %d rows, want 3", n)
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions after prune, want 2", len(sessions))
	}
	if sessions[0].SessionID != "e" || sessions[1].SessionID != "d" {
		t.Errorf("kept %q and %q, want e and d", sessions[0].SessionID, sessions[1].SessionID)
	}
}

func TestPruneZeroKeepsAll(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	if err := s.SaveSnapshot(ctx, testSnapshot("a", time.Now().UTC())); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	n, err := s.Prune(ctx, 0)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("pruned %d rows, want 0", n)
	}
}
