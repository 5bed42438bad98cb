package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

const pingTimeout = 5 * time.Second

// PostgresBackend stores keys in the kv_items table, one namespace per area.
type PostgresBackend struct {
	db        *sql.DB
	namespace string
}

var _ Backend = (*PostgresBackend)(nil)

// ConnectPostgres opens a pool and verifies the connection.
func ConnectPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", ErrBackendUnavailable)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", ErrBackendUnavailable, err)
	}
	return db, nil
}

// EnsureSchema creates the kv_items table when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const query = `
	CREATE TABLE IF NOT EXISTS kv_items (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (namespace, key)
	);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create kv_items: %w", err)
	}
	return nil
}

// NewPostgresBackend creates a backend scoped to namespace.
func NewPostgresBackend(db *sql.DB, namespace string) *PostgresBackend {
	return &PostgresBackend{db: db, namespace: namespace}
}

// Get implements Backend.
func (b *PostgresBackend) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM kv_items WHERE namespace = $1 AND key = $2`,
		b.namespace, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set implements Backend. The CTE reads the previous row in the same
// statement snapshot as the upsert.
func (b *PostgresBackend) Set(ctx context.Context, key, value string) (string, bool, error) {
	const query = `
	WITH prev AS (
		SELECT value FROM kv_items WHERE namespace = $1 AND key = $2 FOR UPDATE
	)
	INSERT INTO kv_items (namespace, key, value, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (namespace, key) DO UPDATE SET
		value = EXCLUDED.value,
		updated_at = EXCLUDED.updated_at
	RETURNING (SELECT value FROM prev)
	`
	var old sql.NullString
	if err := b.db.QueryRowContext(ctx, query, b.namespace, key, value).Scan(&old); err != nil {
		return "", false, err
	}
	return old.String, old.Valid, nil
}

// Remove implements Backend.
func (b *PostgresBackend) Remove(ctx context.Context, key string) (string, bool, error) {
	var old string
	err := b.db.QueryRowContext(ctx,
		`DELETE FROM kv_items WHERE namespace = $1 AND key = $2 RETURNING value`,
		b.namespace, key).Scan(&old)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return old, true, nil
}

// Clear implements Backend.
func (b *PostgresBackend) Clear(ctx context.Context) (int, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM kv_items WHERE namespace = $1`, b.namespace)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Kind implements Backend.
func (b *PostgresBackend) Kind() string { return "postgres" }
