package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payPlanner/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS payment_history (
	account    TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store keeps per-account payment history in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the history table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create payment_history: %w", err)
	}
	return nil
}

// Load returns the stored payload for account.
func (s *Store) Load(ctx context.Context, account string) ([]byte, bool, error) {
	var payload []byte
	row := s.pool.QueryRow(ctx, `SELECT payload FROM payment_history WHERE account=$1`, storage.AccountKey(account))
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

// Save upserts the payload for account.
func (s *Store) Save(ctx context.Context, account string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payment_history (account, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (account) DO UPDATE
		SET payload = EXCLUDED.payload, updated_at = now()
	`, storage.AccountKey(account), string(data))
	return err
}

// Delete removes the account's row.
func (s *Store) Delete(ctx context.Context, account string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM payment_history WHERE account=$1`, storage.AccountKey(account))
	return err
}
