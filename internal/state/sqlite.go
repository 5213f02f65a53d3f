package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/ryosukesatoh/weekly-report/internal/state/migrations"
)

// SQLiteStore keeps the full delivery history.
type SQLiteStore struct {
	db       *sql.DB
	readOnly bool
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: open sqlite: %w", err)
	}

	if err := runMigrations(db); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		db.Close()
		return nil, fmt.Errorf("state: failed to run migrations: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: ping sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// openSQLiteReadOnly opens an existing database with mode=ro and skips the
// migrations, so the file is never written.
func openSQLiteReadOnly(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("state: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: ping sqlite: %w", err)
	}
	return &SQLiteStore{db: db, readOnly: true}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return err
	}

	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return err
	}
	return m.Up()
}

func (s *SQLiteStore) LastSent(ctx context.Context) (string, error) {
	query, args, err := sq.Select("url").
		From("sent_reports").
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("state: build query: %w", err)
	}

	var url string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("state: query last sent: %w", err)
	}
	return url, nil
}

func (s *SQLiteStore) MarkSent(ctx context.Context, url string, at time.Time) error {
	if s.readOnly {
		return ErrReadOnly
	}
	query, args, err := sq.Insert("sent_reports").
		Columns("url", "sent_at").
		Values(url, at.UTC().Format(time.RFC3339)).
		ToSql()
	if err != nil {
		return fmt.Errorf("state: build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("state: insert sent report: %w", err)
	}
	return nil
}

// History returns delivered reports, newest first.
func (s *SQLiteStore) History(ctx context.Context, limit int) ([]Entry, error) {
	b := sq.Select("url", "sent_at").From("sent_reports").OrderBy("id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("state: build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("state: query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			sentAt string
		)
		if err := rows.Scan(&e.URL, &sentAt); err != nil {
			return nil, fmt.Errorf("state: scan history: %w", err)
		}
		if e.SentAt, err = time.Parse(time.RFC3339, sentAt); err != nil {
			return nil, fmt.Errorf("state: parse sent_at %q: %w", sentAt, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
