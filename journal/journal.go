// Package journal persists transition records to SQLite.
//
// A journal is an append-only log: observers insert one row per record
// during dispatch, and replay tooling reads the rows back in a
// deterministic order (seq ASC, id ASC). Rows are never updated or
// deleted. The (token, seq) pair is unique, so appending the same
// record twice is a silent no-op and replaying a dispatch against an
// existing journal cannot duplicate history.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (transitions table, token index)
const currentSchemaVersion = 1

// timeLayout is the stored form of Entry.RecordedAt. Lexicographic
// order matches chronological order within a journal.
const timeLayout = time.RFC3339Nano

// Entry is one journaled transition record.
type Entry struct {
	// ID is the rowid assigned on insert. Zero until the entry has
	// been read back from a journal.
	ID int64

	Token      string
	Seq        int64
	Kind       string
	FromState  string
	ToState    string
	Trigger    string
	RecordedAt time.Time
}

// Store provides durable storage for transition records.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

// Open creates or opens a journal database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1) // Single writer to avoid SQLITE_BUSY errors
	db.SetMaxIdleConns(1) // Keep one connection ready

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append inserts an entry into the journal.
// Uses ON CONFLICT(token, seq) DO NOTHING for idempotency - appending
// the same (token, seq) twice is silently ignored. Other constraint
// violations (e.g., NOT NULL) still return errors.
func (s *Store) Append(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions
		(token, seq, kind, from_state, to_state, trigger, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token, seq) DO NOTHING
	`,
		e.Token,
		e.Seq,
		e.Kind,
		e.FromState,
		e.ToState,
		e.Trigger,
		e.RecordedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}

	return nil
}

// ReadAll returns every journaled entry with deterministic ordering.
// Results are ordered by seq ASC, id ASC.
//
// Returns an empty slice (not nil) if the journal is empty.
func (s *Store) ReadAll(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, token, seq, kind, from_state, to_state, trigger, recorded_at
		FROM transitions
		ORDER BY seq ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ReadToken returns all entries recorded under a dispatch token with
// deterministic ordering. Results are ordered by seq ASC, id ASC.
//
// Returns an empty slice (not nil) if the token is unknown.
func (s *Store) ReadToken(ctx context.Context, token string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, token, seq, kind, from_state, to_state, trigger, recorded_at
		FROM transitions
		WHERE token = ?
		ORDER BY seq ASC, id ASC
	`, token)
	if err != nil {
		return nil, fmt.Errorf("query entries for token: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// Tokens returns the distinct dispatch tokens present in the journal,
// in first-appearance order.
func (s *Store) Tokens(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token
		FROM transitions
		GROUP BY token
		ORDER BY MIN(id) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}

	if tokens == nil {
		tokens = []string{}
	}

	return tokens, nil
}

// collectEntries drains rows into a slice, converting stored
// timestamps back to time.Time.
func collectEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	// Return empty slice instead of nil
	if entries == nil {
		entries = []Entry{}
	}

	return entries, nil
}

// scanEntry scans a row into an Entry struct.
func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var recordedAt string

	if err := rows.Scan(
		&e.ID, &e.Token, &e.Seq, &e.Kind,
		&e.FromState, &e.ToState, &e.Trigger, &recordedAt,
	); err != nil {
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}

	at, err := time.Parse(timeLayout, recordedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse recorded_at %q: %w", recordedAt, err)
	}
	e.RecordedAt = at

	return e, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and stamps the
// schema version. This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}
