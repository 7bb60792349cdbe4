package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/avbridge/internal/infrastructure/database"
)

// SQLiteStore keeps values in the kv_state table. The table is created by
// the embedded migrations.
type SQLiteStore struct {
	db     *database.DB
	prefix keyspace
}

// NewSQLiteStore creates a store over an open, migrated database.
func NewSQLiteStore(db *database.DB, prefix string) *SQLiteStore {
	return &SQLiteStore{db: db, prefix: keyspace(prefix)}
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	k, err := s.prefix.key(key)
	if err != nil {
		return false, err
	}

	var value string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, k).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading state %s: %w", key, err)
	}
	if err := decode(key, []byte(value), dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, key string, value any) error {
	k, err := s.prefix.key(key)
	if err != nil {
		return err
	}
	data, err := encode(key, value)
	if err != nil {
		return err
	}

	const query = `INSERT INTO kv_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, k, string(data), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("writing state %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	k, err := s.prefix.key(key)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_state WHERE key = ?`, k); err != nil {
		return fmt.Errorf("deleting state %s: %w", key, err)
	}
	return nil
}

// Close implements Store. The database is owned by the caller.
func (s *SQLiteStore) Close() error { return nil }
