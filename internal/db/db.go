package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Conn is the subset of pgxpool.Pool the repositories use.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DB struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS task_history (
	device_id    TEXT        NOT NULL,
	robot_id     TEXT        NOT NULL,
	task_id      TEXT        NOT NULL,
	task         JSONB       NOT NULL,
	first_seen   TIMESTAMPTZ NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (device_id, robot_id, task_id)
);
CREATE INDEX IF NOT EXISTS task_history_last_updated_idx ON task_history (last_updated);
CREATE TABLE IF NOT EXISTS fleet_settings (
	name       TEXT        PRIMARY KEY,
	value      JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Migrate creates the tables the service needs.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (d *DB) Close() {
	d.Pool.Close()
}
