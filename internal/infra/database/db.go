package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver, registered as "sqlite"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute

	pingMaxRetries = 5
)

//go:embed migrations
var migrationsFS embed.FS

// NewPostgresConnection creates and returns a new PostgreSQL database connection.
// The first ping is retried with exponential backoff so the service can start
// alongside its database.
func NewPostgresConnection(ctx context.Context, dataSourceName string, log *logrus.Entry) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), pingMaxRetries), ctx)
	err = backoff.RetryNotify(func() error { return db.PingContext(ctx) }, policy, func(err error, wait time.Duration) {
		log.WithError(err).WithField("retry_in", wait.String()).Warn("Database not reachable yet")
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewSQLiteConnection opens (and creates if needed) a SQLite database file.
// ":memory:" is accepted for tests.
func NewSQLiteConnection(path string) (*sql.DB, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "sqlite://")
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection: serialises writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// journal_mode is stored in the database file; the per-connection pragmas
	// travel in the DSN so a re-dialed connection gets them too.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	return db, nil
}

// sqliteConnPragmas are applied by modernc.org/sqlite on every new connection.
var sqliteConnPragmas = []string{"foreign_keys(1)", "busy_timeout(5000)"}

func sqliteDSN(path string) string {
	params := make([]string, 0, len(sqliteConnPragmas))
	for _, p := range sqliteConnPragmas {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

// Migrate applies the embedded goose migrations for the given driver.
func Migrate(ctx context.Context, db *sql.DB, driver string, log *logrus.Entry) error {
	dialect, dir := goose.DialectPostgres, "migrations/postgres"
	if driver == "sqlite" {
		dialect, dir = goose.DialectSQLite3, "migrations/sqlite"
	}

	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("migrations %s: %w", dir, err)
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	for _, r := range results {
		log.WithFields(logrus.Fields{
			"version":   r.Source.Version,
			"took":      r.Duration.String(),
			"migration": filepath.Base(r.Source.Path),
		}).Info("Migration applied")
	}
	return nil
}
