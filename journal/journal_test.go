package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// createTestJournal creates a journal in a temp directory.
func createTestJournal(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testEntry creates an entry with a fixed timestamp.
func testEntry(token string, seq int64, from, to, trigger string) Entry {
	return Entry{
		Token:      token,
		Seq:        seq,
		Kind:       "transition",
		FromState:  from,
		ToState:    to,
		Trigger:    trigger,
		RecordedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	if err := s1.Append(ctx, testEntry("tok-1", 1, "off", "standby", "PowerOn")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	entries, err := s2.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries after reopen, want 1", len(entries))
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

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
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
		"transitions",
	).Scan(&name)
	if err != nil {
		t.Errorf("transitions table not found after idempotent opens: %v", err)
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := createTestJournal(t)

	checks := map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"busy_timeout": "5000",
	}
	for name, want := range checks {
		var got string
		if err := s.db.QueryRow("PRAGMA " + name).Scan(&got); err != nil {
			t.Fatalf("query PRAGMA %s failed: %v", name, err)
		}
		if got != want {
			t.Errorf("PRAGMA %s = %q, want %q", name, got, want)
		}
	}
}

func TestOpen_StampsSchemaVersion(t *testing.T) {
	s := createTestJournal(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version failed: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestAppend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestJournal(t)

	want := testEntry("tok-1", 1, "standby", "active", "Activate")
	if err := s.Append(ctx, want); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	entries, err := s.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	got := entries[0]
	if got.ID == 0 {
		t.Error("ID was not assigned on insert")
	}
	if got.Token != want.Token {
		t.Errorf("Token = %q, want %q", got.Token, want.Token)
	}
	if got.Seq != want.Seq {
		t.Errorf("Seq = %d, want %d", got.Seq, want.Seq)
	}
	if got.Kind != want.Kind {
		t.Errorf("Kind = %q, want %q", got.Kind, want.Kind)
	}
	if got.FromState != want.FromState {
		t.Errorf("FromState = %q, want %q", got.FromState, want.FromState)
	}
	if got.ToState != want.ToState {
		t.Errorf("ToState = %q, want %q", got.ToState, want.ToState)
	}
	if got.Trigger != want.Trigger {
		t.Errorf("Trigger = %q, want %q", got.Trigger, want.Trigger)
	}
	if !got.RecordedAt.Equal(want.RecordedAt) {
		t.Errorf("RecordedAt = %v, want %v", got.RecordedAt, want.RecordedAt)
	}
}

func TestAppend_IdempotentOnTokenSeq(t *testing.T) {
	ctx := context.Background()
	s := createTestJournal(t)

	e := testEntry("tok-1", 1, "off", "standby", "PowerOn")
	if err := s.Append(ctx, e); err != nil {
		t.Fatalf("first Append() failed: %v", err)
	}
	if err := s.Append(ctx, e); err != nil {
		t.Fatalf("duplicate Append() failed: %v", err)
	}

	entries, err := s.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("duplicate (token, seq) produced %d rows, want 1", len(entries))
	}

	// A different seq under the same token is a new row.
	if err := s.Append(ctx, testEntry("tok-1", 2, "standby", "active", "Activate")); err != nil {
		t.Fatalf("Append() with new seq failed: %v", err)
	}
	entries, err = s.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d rows, want 2", len(entries))
	}
}

func TestReadAll_EmptyJournal(t *testing.T) {
	ctx := context.Background()
	s := createTestJournal(t)

	entries, err := s.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	if entries == nil {
		t.Fatal("ReadAll() returned nil, want empty slice")
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

func TestReadAll_OrdersBySeq(t *testing.T) {
	ctx := context.Background()
	s := createTestJournal(t)

	// Insert out of seq order; reads must come back seq ASC.
	for _, seq := range []int64{3, 1, 2} {
		if err := s.Append(ctx, testEntry("tok-1", seq, "a", "b", "step")); err != nil {
			t.Fatalf("Append() seq %d failed: %v", seq, err)
		}
	}

	entries, err := s.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, want := range []int64{1, 2, 3} {
		if entries[i].Seq != want {
			t.Errorf("entries[%d].Seq = %d, want %d", i, entries[i].Seq, want)
		}
	}
}

func TestReadToken_FiltersByToken(t *testing.T) {
	ctx := context.Background()
	s := createTestJournal(t)

	if err := s.Append(ctx, testEntry("tok-1", 1, "off", "standby", "PowerOn")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if err := s.Append(ctx, testEntry("tok-2", 2, "standby", "active", "Activate")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if err := s.Append(ctx, testEntry("tok-2", 3, "active", "error", "ErrorOccurred")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	entries, err := s.ReadToken(ctx, "tok-2")
	if err != nil {
		t.Fatalf("ReadToken() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries for tok-2, want 2", len(entries))
	}
	for i, e := range entries {
		if e.Token != "tok-2" {
			t.Errorf("entries[%d].Token = %q, want %q", i, e.Token, "tok-2")
		}
	}
	if entries[0].Seq != 2 || entries[1].Seq != 3 {
		t.Errorf("got seqs %d, %d, want 2, 3", entries[0].Seq, entries[1].Seq)
	}
}

func TestReadToken_UnknownToken(t *testing.T) {
	ctx := context.Background()
	s := createTestJournal(t)

	entries, err := s.ReadToken(ctx, "no-such-token")
	if err != nil {
		t.Fatalf("ReadToken() failed: %v", err)
	}
	if entries == nil {
		t.Fatal("ReadToken() returned nil, want empty slice")
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

func TestTokens_FirstAppearanceOrder(t *testing.T) {
	ctx := context.Background()
	s := createTestJournal(t)

	// tok-b appears first by insertion even though tok-a sorts lower.
	if err := s.Append(ctx, testEntry("tok-b", 5, "a", "b", "step")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if err := s.Append(ctx, testEntry("tok-a", 6, "b", "c", "step")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if err := s.Append(ctx, testEntry("tok-b", 7, "c", "d", "step")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	tokens, err := s.Tokens(ctx)
	if err != nil {
		t.Fatalf("Tokens() failed: %v", err)
	}
	want := []string{"tok-b", "tok-a"}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(tokens), len(want))
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("tokens[%d] = %q, want %q", i, tokens[i], want[i])
		}
	}
}

func TestTokens_EmptyJournal(t *testing.T) {
	ctx := context.Background()
	s := createTestJournal(t)

	tokens, err := s.Tokens(ctx)
	if err != nil {
		t.Fatalf("Tokens() failed: %v", err)
	}
	if tokens == nil {
		t.Fatal("Tokens() returned nil, want empty slice")
	}
	if len(tokens) != 0 {
		t.Errorf("got %d tokens, want 0", len(tokens))
	}
}
