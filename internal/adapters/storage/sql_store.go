package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stoik/threat-engine/internal/domain"
	"github.com/stoik/threat-engine/internal/ports"
)

var _ ports.Store = (*SQLStore)(nil)

// Supported database/sql driver names
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite3"
)

// PoolConfig sizes the connection pool. Ignored for SQLite, which always
// runs on a single connection.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig is sized for a single worker process
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxOpenConns: 5, MaxIdleConns: 1, ConnMaxLifetime: 5 * time.Minute}
}

// SQLStore implements ports.Store on PostgreSQL (lib/pq or pgx) and SQLite.
// Queries are written with ? placeholders and rebound for the driver.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// NewSQLStore opens and pings a database
func NewSQLStore(driver, dsn string, pool PoolConfig) (*SQLStore, error) {
	switch driver {
	case DriverPostgres, DriverPgx, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// One connection keeps in-memory databases alive and serializes writers
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(pool.MaxOpenConns)
		db.SetMaxIdleConns(pool.MaxIdleConns)
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLStore{db: db, driver: driver}, nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// InitSchema creates tables and indexes if they don't exist and seeds the
// model pointer row. In production, use proper migration tools.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO model_pointer (id, active_version, previous_version, generation, updated_at)
		VALUES (1, '', '', 0, ?)
		ON CONFLICT (id) DO NOTHING
	`), utc(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to seed model pointer: %w", err)
	}
	return nil
}

// q rebinds ? placeholders for the driver
func (s *SQLStore) q(query string) string {
	return s.db.Rebind(query)
}

// inTx runs fn in a transaction, rolling back on error.
// fn must only use tx: SQLite has a single connection.
func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// dbErr wraps a driver error unless it already carries a domain code
func dbErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.CodeOf(err) != "" {
		return err
	}
	return domain.NewDatabaseError(op, err)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// All timestamps are written in UTC so SQLite's text comparison orders them
func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// JSON columns are stored as text in every dialect
func marshalColumn(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalColumn(data sql.NullString, v any) error {
	if !data.Valid || data.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(data.String), v)
}
