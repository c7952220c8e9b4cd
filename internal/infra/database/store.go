package database

import (
	"context"
	"database/sql"
	"fmt"

	"property_due_alerts/internal/domain/dispatch"
	"property_due_alerts/internal/domain/obligation"

	"github.com/sirupsen/logrus"
)

// Store bundles the connection with the repositories for the configured driver.
type Store struct {
	DB          *sql.DB
	Driver      string
	Obligations obligation.Repository
	Dispatch    dispatch.Repository
}

// Open connects to "postgres" or "sqlite" and wires the matching repositories.
func Open(ctx context.Context, driver, url string, log *logrus.Entry) (*Store, error) {
	switch driver {
	case "postgres":
		db, err := NewPostgresConnection(ctx, url, log)
		if err != nil {
			return nil, err
		}
		return &Store{
			DB:          db,
			Driver:      driver,
			Obligations: NewPostgresObligationRepository(db),
			Dispatch:    NewPostgresDispatchRepository(db),
		}, nil
	case "sqlite":
		db, err := NewSQLiteConnection(url)
		if err != nil {
			return nil, err
		}
		return &Store{
			DB:          db,
			Driver:      driver,
			Obligations: NewSQLiteObligationRepository(db),
			Dispatch:    NewSQLiteDispatchRepository(db),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate brings the schema up to date.
func (s *Store) Migrate(ctx context.Context, log *logrus.Entry) error {
	return Migrate(ctx, s.DB, s.Driver, log)
}

func (s *Store) Close() error {
	return s.DB.Close()
}
