// Package store implements the persistence gateway over MySQL. It provides
// typed operations for credentials, API keys, request logs, and site settings.
// All token fields are stored as opaque strings; request and response bodies
// are never persisted.
package store

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

// Store wraps the database handle and exposes the typed persistence API.
type Store struct {
	db *sqlx.DB
}

// Open connects to MySQL using the given DSN, verifies connectivity, and
// bootstraps the schema.
//
// Parameters:
//   - dsn: The go-sql-driver/mysql data source name
//
// Returns:
//   - *Store: A ready-to-use store
//   - error: An error if the connection or bootstrap fails
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(32)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err = s.bootstrap(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing database handle. Used by tests.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) bootstrap(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to bootstrap schema: %w", err)
		}
	}
	log.Debug("database schema verified")
	return nil
}
