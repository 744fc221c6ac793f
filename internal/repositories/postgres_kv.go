package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const kvSchema = `CREATE TABLE IF NOT EXISTS kv_entries (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const upsertQuery = `INSERT INTO kv_entries (key, value)
	          VALUES ($1, $2)
	          ON CONFLICT (key) DO UPDATE
	          SET value = EXCLUDED.value, updated_at = NOW()`

type PostgresKVStore struct {
	pool *pgxpool.Pool
}

func NewPostgresKVStore(pool *pgxpool.Pool) *PostgresKVStore {
	return &PostgresKVStore{pool: pool}
}

// EnsureSchema creates the backing table if it does not exist yet.
func (r *PostgresKVStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, kvSchema); err != nil {
		return fmt.Errorf("failed to create kv_entries: %w", err)
	}
	return nil
}

func (r *PostgresKVStore) Get(ctx context.Context, key string) (string, error) {
	query := `SELECT value FROM kv_entries WHERE key = $1`

	var value string
	err := r.pool.QueryRow(ctx, query, key).Scan(&value)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func (r *PostgresKVStore) Set(ctx context.Context, key, value string) error {
	if _, err := r.pool.Exec(ctx, upsertQuery, key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// SetMany upserts every entry in a single transaction.
func (r *PostgresKVStore) SetMany(ctx context.Context, values map[string]string) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for key, value := range values {
			if _, err := tx.Exec(ctx, upsertQuery, key, value); err != nil {
				return fmt.Errorf("failed to set %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set %d keys: %w", len(values), err)
	}
	return nil
}
