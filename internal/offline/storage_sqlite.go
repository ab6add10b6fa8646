package offline

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jafarshop/tablepos/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStorage keeps the queue in a local SQLite file so it survives restarts
type SQLiteStorage struct {
	db *sql.DB
}

// OpenSQLiteStorage opens (or creates) the queue file at path
func OpenSQLiteStorage(path string) (*SQLiteStorage, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping queue database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStorage{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) Append(ctx context.Context, item domain.QueuedSubmission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queued_submissions (id, created_at, payload) VALUES (?, ?, ?)`,
		item.ID.String(), item.CreatedAt.UnixNano(), string(item.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert queued submission: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) List(ctx context.Context) ([]domain.QueuedSubmission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, payload FROM queued_submissions ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query queued submissions: %w", err)
	}
	defer rows.Close()

	var items []domain.QueuedSubmission
	for rows.Next() {
		var (
			id        string
			createdAt int64
			payload   string
		)
		if err := rows.Scan(&id, &createdAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan queued submission: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("queued submission has malformed id %q: %w", id, err)
		}
		items = append(items, domain.QueuedSubmission{
			ID:        parsed,
			CreatedAt: time.Unix(0, createdAt).UTC(),
			Payload:   []byte(payload),
		})
	}

	return items, rows.Err()
}

func (s *SQLiteStorage) Remove(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queued_submissions WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete queued submission: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
