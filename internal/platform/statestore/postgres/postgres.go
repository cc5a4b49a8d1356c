// Package postgres is the durable statestore.Store backend: a single
// actor_state table addressed through database/sql, grounded on the
// teacher's common/mpostgres connection-hub pattern (a struct wrapping
// a lazily-initialized driver handle behind Connect/GetDB).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/torratdev/grace/internal/mlog"
)

// Connection is a hub which deals with the state store's postgres
// connection, mirroring common/mpostgres.PostgresConnection.
type Connection struct {
	ConnectionString string
	DatabaseName     string
	MigrationsDir    string
	Logger           mlog.Logger

	db        *sql.DB
	Connected bool
}

// Connect opens the database, runs pending migrations, and pings.
func (c *Connection) Connect(_ context.Context) error {
	c.Logger.Info("connecting to postgres state store...")

	db, err := sql.Open("pgx", c.ConnectionString)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}

	if c.MigrationsDir != "" {
		if err := c.migrate(db); err != nil {
			return err
		}
	}

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	c.db = db
	c.Connected = true

	c.Logger.Info("connected to postgres state store")

	return nil
}

func (c *Connection) migrate(db *sql.DB) error {
	abs, err := filepath.Abs(c.MigrationsDir)
	if err != nil {
		return fmt.Errorf("migrations path: %w", err)
	}

	sourceURL := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}

	driver, err := postgres.WithInstance(db, &postgres.Config{DatabaseName: c.DatabaseName, SchemaName: "public"})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL.String(), c.DatabaseName, driver)
	if err != nil {
		return fmt.Errorf("migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up: %w", err)
	}

	return nil
}

// GetDB returns the *sql.DB, connecting lazily if necessary.
func (c *Connection) GetDB(ctx context.Context) (*sql.DB, error) {
	if c.db == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.db, nil
}

// Store is a statestore.Store backed by a single actor_state table.
type Store struct {
	conn *Connection
}

// New wraps an already-configured Connection as a Store.
func New(conn *Connection) *Store {
	return &Store{conn: conn}
}

func (s *Store) Save(ctx context.Context, actorID, key string, value []byte) error {
	db, err := s.conn.GetDB(ctx)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO actor_state (actor_id, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (actor_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	_, err = db.ExecContext(ctx, q, actorID, key, value)

	return err
}

func (s *Store) Retrieve(ctx context.Context, actorID, key string) ([]byte, bool, error) {
	db, err := s.conn.GetDB(ctx)
	if err != nil {
		return nil, false, err
	}

	const q = `SELECT value FROM actor_state WHERE actor_id = $1 AND key = $2`

	var value []byte

	err = db.QueryRowContext(ctx, q, actorID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	return value, true, nil
}

func (s *Store) Delete(ctx context.Context, actorID, key string) (bool, error) {
	db, err := s.conn.GetDB(ctx)
	if err != nil {
		return false, err
	}

	const q = `DELETE FROM actor_state WHERE actor_id = $1 AND key = $2`

	res, err := db.ExecContext(ctx, q, actorID, key)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}
