// Package history keeps the most recent answered questions in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"tutorbook/internal/answer"
)

// MaxEntries is how many answers are kept; older ones are pruned on Add.
const MaxEntries = 50

var ErrNotFound = errors.New("history entry not found")

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	subject        TEXT NOT NULL,
	level          TEXT NOT NULL,
	learning_style TEXT NOT NULL,
	language       TEXT NOT NULL,
	question       TEXT NOT NULL,
	answer         TEXT NOT NULL,
	created_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS history_created_at ON history (created_at DESC);
`

type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open creates the database file and its directory if needed.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create history directory %q: %w", dir, err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlx.Open() > %w", err)
	}
	// SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		if isCantOpen(err) {
			return nil, fmt.Errorf("cannot open history at %q: %w", path, err)
		}
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func isCantOpen(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CANTOPEN
	}
	return false
}

func (s *Store) Close() error { return s.db.Close() }

// Add stores e and prunes everything beyond the newest MaxEntries. A zero
// timestamp is filled in with the current time.
func (s *Store) Add(ctx context.Context, e answer.HistoryEntry) (answer.HistoryEntry, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	e.Timestamp = e.Timestamp.UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return answer.HistoryEntry{}, fmt.Errorf("db.BeginTxx > %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.NamedExecContext(ctx, `
		INSERT INTO history (subject, level, learning_style, language, question, answer, created_at)
		VALUES (:subject, :level, :learning_style, :language, :question, :answer, :created_at)`, e)
	if err != nil {
		return answer.HistoryEntry{}, fmt.Errorf("insert history: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return answer.HistoryEntry{}, fmt.Errorf("insert history: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM history WHERE id NOT IN (
			SELECT id FROM history ORDER BY created_at DESC, id DESC LIMIT ?
		)`, MaxEntries); err != nil {
		return answer.HistoryEntry{}, fmt.Errorf("prune history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return answer.HistoryEntry{}, fmt.Errorf("commit history: %w", err)
	}
	return e, nil
}

// List returns up to limit entries, newest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]answer.HistoryEntry, error) {
	if limit <= 0 {
		limit = MaxEntries
	}
	entries := []answer.HistoryEntry{}
	if err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM history ORDER BY created_at DESC, id DESC LIMIT ?", limit); err != nil {
		return nil, fmt.Errorf("db.SelectContext(history) > %w", err)
	}
	return entries, nil
}

func (s *Store) Get(ctx context.Context, id int64) (answer.HistoryEntry, error) {
	var e answer.HistoryEntry
	err := s.db.GetContext(ctx, &e, "SELECT * FROM history WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return answer.HistoryEntry{}, ErrNotFound
	}
	if err != nil {
		return answer.HistoryEntry{}, fmt.Errorf("db.GetContext(history) > %w", err)
	}
	return e, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM history"); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
