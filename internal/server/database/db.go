package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect names the database/sql driver in use.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "pgx"
)

// migrations contains all database migrations in order. Statements are kept
// per dialect because the two stores disagree on auto-increment keys.
var migrations = []struct {
	Version string
	SQL     map[Dialect][]string
}{
	{
		Version: "000001_create_activity_log",
		SQL: map[Dialect][]string{
			DialectSQLite: {
				`CREATE TABLE IF NOT EXISTS activity_log (
					id          INTEGER      PRIMARY KEY AUTOINCREMENT,
					subject     VARCHAR(500) NOT NULL,
					ip_address  VARCHAR(64)  NOT NULL,
					ip_location VARCHAR(100) NOT NULL DEFAULT 'unknown',
					device      VARCHAR(200) NOT NULL DEFAULT 'unknown',
					action      VARCHAR(20)  NOT NULL,
					created_at  BIGINT       NOT NULL
				)`,
			},
			DialectPostgres: {
				`CREATE TABLE IF NOT EXISTS activity_log (
					id          BIGSERIAL    PRIMARY KEY,
					subject     VARCHAR(500) NOT NULL,
					ip_address  VARCHAR(64)  NOT NULL,
					ip_location VARCHAR(100) NOT NULL DEFAULT 'unknown',
					device      VARCHAR(200) NOT NULL DEFAULT 'unknown',
					action      VARCHAR(20)  NOT NULL,
					created_at  BIGINT       NOT NULL
				)`,
			},
		},
	},
	{
		Version: "000002_index_activity_log",
		SQL: map[Dialect][]string{
			DialectSQLite: {
				`CREATE INDEX IF NOT EXISTS idx_activity_dedup ON activity_log(ip_address, subject, action, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity_log(created_at)`,
			},
			DialectPostgres: {
				`CREATE INDEX IF NOT EXISTS idx_activity_dedup ON activity_log(ip_address, subject, action, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity_log(created_at)`,
			},
		},
	},
	{
		Version: "000003_create_share_links",
		SQL: map[Dialect][]string{
			DialectSQLite: {
				`CREATE TABLE IF NOT EXISTS share_links (
					id             INTEGER      PRIMARY KEY AUTOINCREMENT,
					file_path      VARCHAR(500) NOT NULL,
					slug           VARCHAR(50)  NOT NULL UNIQUE,
					expire_at      BIGINT,
					created_at     BIGINT       NOT NULL,
					download_count BIGINT       NOT NULL DEFAULT 0
				)`,
			},
			DialectPostgres: {
				`CREATE TABLE IF NOT EXISTS share_links (
					id             BIGSERIAL    PRIMARY KEY,
					file_path      VARCHAR(500) NOT NULL,
					slug           VARCHAR(50)  NOT NULL UNIQUE,
					expire_at      BIGINT,
					created_at     BIGINT       NOT NULL,
					download_count BIGINT       NOT NULL DEFAULT 0
				)`,
			},
		},
	},
	{
		Version: "000004_create_archived_stats",
		SQL: map[Dialect][]string{
			DialectSQLite: {
				`CREATE TABLE IF NOT EXISTS archived_stats (
					stat_key VARCHAR(50) PRIMARY KEY,
					value    BIGINT      NOT NULL DEFAULT 0
				)`,
			},
			DialectPostgres: {
				`CREATE TABLE IF NOT EXISTS archived_stats (
					stat_key VARCHAR(50) PRIMARY KEY,
					value    BIGINT      NOT NULL DEFAULT 0
				)`,
			},
		},
	},
}

// DB wraps a database/sql handle together with the dialect it talks to.
type DB struct {
	SQL     *sql.DB
	Dialect Dialect
}

// New opens the store named by databaseURL. postgres:// and postgresql:// URLs
// use pgx; anything else is treated as a SQLite file path or DSN.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	dialect, dsn, err := resolveDSN(databaseURL)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		// One connection serializes writers and keeps :memory: databases intact.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database", "dialect", dialect)
	return &DB{SQL: sqlDB, Dialect: dialect}, nil
}

func resolveDSN(databaseURL string) (Dialect, string, error) {
	if databaseURL == "" {
		return "", "", errors.New("database URL is empty")
	}
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return DialectPostgres, databaseURL, nil
	}

	dsn := strings.TrimPrefix(databaseURL, "sqlite://")
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path != ":memory:" && path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	return DialectSQLite, dsn, nil
}

// RunMigrations applies all pending database migrations in order.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.SQL.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    VARCHAR(255) PRIMARY KEY,
			applied_at BIGINT       NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := db.SQL.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status for %s: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.SQL.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Version, err)
		}

		for _, stmt := range m.SQL[db.Dialect] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)",
			m.Version, toMillis(time.Now()),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}

		slog.Info("applied migration", "version", m.Version)
	}

	return nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() error {
	return db.SQL.Close()
}

// snapshotTx begins a transaction whose reads and writes see one snapshot.
func (db *DB) snapshotTx(ctx context.Context) (*sql.Tx, error) {
	var opts *sql.TxOptions
	if db.Dialect == DialectPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	}
	return db.SQL.BeginTx(ctx, opts)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
