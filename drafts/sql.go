package drafts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite"
)

// Dialect selects SQL syntax differences between backends.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
)

// SQLStore keeps drafts in a single table. Payloads are JSON; id, owner,
// step and timestamps are also stored as columns for listing and purging.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// OpenSQLite opens (and creates) a SQLite database file.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)
	return NewSQLStore(ctx, db, SQLite)
}

// OpenPostgres connects to PostgreSQL and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewSQLStore(ctx, db, Postgres)
}

// NewSQLStore wraps an open database and creates the drafts table.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	blob := "BLOB"
	if s.dialect == Postgres {
		blob = "BYTEA"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS drafts (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			step TEXT NOT NULL,
			payload ` + blob + ` NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS drafts_owner_updated ON drafts (owner, updated_at)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to create drafts table: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $N for PostgreSQL.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Save(ctx context.Context, d *Draft) error {
	stamp(d, s.now())
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	q := s.rebind(`INSERT INTO drafts (id, owner, step, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner = excluded.owner,
			step = excluded.step,
			payload = excluded.payload,
			updated_at = excluded.updated_at`)
	_, err = s.db.ExecContext(ctx, q, d.ID.String(), d.Owner, string(d.Step), payload,
		d.CreatedAt.UnixNano(), d.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("error saving draft %s: %w", d.ID, err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context, id uuid.UUID) (*Draft, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT payload FROM drafts WHERE id = ?`), id.String()).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error loading draft %s: %w", id, err)
	}
	var d Draft
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("error decoding draft %s: %w", id, err)
	}
	return &d, nil
}

func (s *SQLStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM drafts WHERE id = ?`), id.String())
	if err != nil {
		return fmt.Errorf("error deleting draft %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, owner string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, owner, step, updated_at FROM drafts WHERE owner = ? ORDER BY updated_at DESC, id`), owner)
	if err != nil {
		return nil, fmt.Errorf("error listing drafts: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			id, step string
			sum      Summary
			updated  int64
		)
		if err := rows.Scan(&id, &sum.Owner, &step, &updated); err != nil {
			return nil, fmt.Errorf("error scanning draft row: %w", err)
		}
		if sum.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("draft row has invalid id %q: %w", id, err)
		}
		sum.Step = Step(step)
		sum.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLStore) PurgeBefore(ctx context.Context, t time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM drafts WHERE updated_at < ?`), t.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("error purging drafts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
