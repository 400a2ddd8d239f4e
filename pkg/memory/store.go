package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/harunnryd/companion/pkg/errorsx"
)

// Speakers recorded in the turn log.
const (
	SpeakerChild     = "child"
	SpeakerCompanion = "companion"
)

// Record is one conversation turn. Turns are append-only; nothing ever
// updates or deletes them.
type Record struct {
	ID        int64
	Identity  string
	SessionID string
	Speaker   string
	Content   string
	Sentiment string
	CreatedAt time.Time
}

// Config tunes the backing SQLite store.
type Config struct {
	// Path is the database file; ":memory:" works for tests.
	Path string
	// MaxOpenConns caps the connection pool.
	MaxOpenConns int
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = "companion.db"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 4
	}
	return c
}

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	identity   TEXT NOT NULL,
	session_id TEXT NOT NULL,
	speaker    TEXT NOT NULL,
	content    TEXT NOT NULL,
	sentiment  TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_identity_created ON turns (identity, created_at);
`

// Store is the pooled, transactional turn log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store and applies the schema.
func Open(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("open memory store: %w", err), errorsx.ReasonPersistenceFailure)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errorsx.Wrap(fmt.Errorf("apply schema: %w", err), errorsx.ReasonPersistenceFailure)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func validate(r Record) error {
	if r.Identity == "" {
		return errors.New("identity required")
	}
	if r.Speaker != SpeakerChild && r.Speaker != SpeakerCompanion {
		return fmt.Errorf("unknown speaker %q", r.Speaker)
	}
	if r.Content == "" {
		return errors.New("content required")
	}
	return nil
}

const insertTurn = `
INSERT INTO turns (identity, session_id, speaker, content, sentiment, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

// AppendTurn records one turn.
func (s *Store) AppendTurn(ctx context.Context, r Record) (int64, error) {
	if err := validate(r); err != nil {
		return 0, errorsx.Wrap(fmt.Errorf("append turn: %w", err), errorsx.ReasonPersistenceFailure)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, insertTurn,
		r.Identity, r.SessionID, r.Speaker, r.Content, r.Sentiment, r.CreatedAt)
	if err != nil {
		return 0, errorsx.Wrap(fmt.Errorf("append turn: %w", err), errorsx.ReasonPersistenceFailure)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errorsx.Wrap(fmt.Errorf("append turn id: %w", err), errorsx.ReasonPersistenceFailure)
	}
	return id, nil
}

// AppendExchange records a child turn and the companion's reply in one
// transaction. Either both land or neither does.
func (s *Store) AppendExchange(ctx context.Context, child, companion Record) error {
	if err := validate(child); err != nil {
		return errorsx.Wrap(fmt.Errorf("append exchange (child): %w", err), errorsx.ReasonPersistenceFailure)
	}
	if err := validate(companion); err != nil {
		return errorsx.Wrap(fmt.Errorf("append exchange (companion): %w", err), errorsx.ReasonPersistenceFailure)
	}
	now := time.Now().UTC()
	if child.CreatedAt.IsZero() {
		child.CreatedAt = now
	}
	if companion.CreatedAt.IsZero() {
		companion.CreatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("append exchange begin: %w", err), errorsx.ReasonPersistenceFailure)
	}
	for _, r := range []Record{child, companion} {
		if _, err := tx.ExecContext(ctx, insertTurn,
			r.Identity, r.SessionID, r.Speaker, r.Content, r.Sentiment, r.CreatedAt); err != nil {
			tx.Rollback()
			return errorsx.Wrap(fmt.Errorf("append exchange insert: %w", err), errorsx.ReasonPersistenceFailure)
		}
	}
	if err := tx.Commit(); err != nil {
		return errorsx.Wrap(fmt.Errorf("append exchange commit: %w", err), errorsx.ReasonPersistenceFailure)
	}
	return nil
}

const selectRecent = `
SELECT id, identity, session_id, speaker, content, sentiment, created_at
FROM turns
WHERE identity = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`

// RecentTurns returns the latest turns for an identity in chronological
// order, capped at limit.
func (s *Store) RecentTurns(ctx context.Context, identity string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectRecent, identity, limit)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("recent turns: %w", err), errorsx.ReasonPersistenceFailure)
	}
	defer rows.Close()

	records, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	// Query returns newest-first; callers want reading order.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

const selectSearch = `
SELECT id, identity, session_id, speaker, content, sentiment, created_at
FROM turns
WHERE identity = ? AND content LIKE ?
ORDER BY created_at DESC, id DESC
LIMIT ?`

// SearchTurns finds turns whose content matches the query substring,
// newest first.
func (s *Store) SearchTurns(ctx context.Context, identity, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectSearch, identity, "%"+query+"%", limit)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("search turns: %w", err), errorsx.ReasonPersistenceFailure)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func scanTurns(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Identity, &r.SessionID, &r.Speaker, &r.Content, &r.Sentiment, &r.CreatedAt); err != nil {
			return nil, errorsx.Wrap(fmt.Errorf("scan turn: %w", err), errorsx.ReasonPersistenceFailure)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("iterate turns: %w", err), errorsx.ReasonPersistenceFailure)
	}
	return records, nil
}
