// Package audit persists a durable ledger of every agent invocation to
// a local SQLite database, so a supervising process can answer "what
// ran, when, and how did it end" without keeping anything in memory.
package audit

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a SQLite-backed invocation ledger.
type Store struct {
	db *sql.DB
}

// Record is one row of the invocation ledger.
type Record struct {
	ID         string
	Alias      string
	SessionID  string
	StartedAt  time.Time
	FinishedAt *time.Time
	ExitCode   *int
	Aborted    bool
	Error      string
}

// Open opens (creating if necessary) the SQLite database at dsn and
// applies any pending migrations.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordStarted implements gateway.AuditRecorder: it inserts a new
// invocation row. Errors are discarded here and never reach the caller —
// the audit trail must never block or fail an invocation.
func (s *Store) RecordStarted(id, alias, sessionID string, startedAt time.Time) {
	_, _ = s.db.Exec(
		"INSERT INTO invocations (id, alias, session_id, started_at, aborted) VALUES (?, ?, ?, ?, 0)",
		id, alias, nullIfEmpty(sessionID), startedAt.UTC(),
	)
}

// RecordFinished implements gateway.AuditRecorder: it updates the
// invocation's terminal state.
func (s *Store) RecordFinished(id string, finishedAt time.Time, exitCode int, aborted bool, errMsg string) {
	_, _ = s.db.Exec(
		"UPDATE invocations SET finished_at = ?, exit_code = ?, aborted = ?, error = ? WHERE id = ?",
		finishedAt.UTC(), exitCode, boolToInt(aborted), nullIfEmpty(errMsg), id,
	)
}

// Get returns one invocation record by id.
func (s *Store) Get(id string) (*Record, error) {
	row := s.db.QueryRow(
		"SELECT id, alias, session_id, started_at, finished_at, exit_code, aborted, error FROM invocations WHERE id = ?",
		id,
	)
	return scanRecord(row)
}

// ListByAlias returns every invocation recorded for alias, most recent
// first, up to limit rows (0 means unlimited).
func (s *Store) ListByAlias(alias string, limit int) ([]Record, error) {
	query := "SELECT id, alias, session_id, started_at, finished_at, exit_code, aborted, error FROM invocations WHERE alias = ? ORDER BY started_at DESC"
	args := []any{alias}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invocations: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var sessionID, errMsg sql.NullString
	var finishedAt sql.NullTime
	var exitCode sql.NullInt64
	var aborted int
	err := row.Scan(&rec.ID, &rec.Alias, &sessionID, &rec.StartedAt, &finishedAt, &exitCode, &aborted, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan invocation: %w", err)
	}
	rec.SessionID = sessionID.String
	rec.Error = errMsg.String
	rec.Aborted = aborted != 0
	if finishedAt.Valid {
		rec.FinishedAt = &finishedAt.Time
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		rec.ExitCode = &code
	}
	return &rec, nil
}

func scanRow(rows *sql.Rows) (*Record, error) {
	return scanRecord(rows)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}
