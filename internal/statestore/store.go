package statestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/avbridge/internal/infrastructure/config"
	"github.com/nerrad567/avbridge/internal/infrastructure/database"
)

// Store is a JSON key/value store.
type Store interface {
	// Get decodes the value stored under key into dst. found is false,
	// with a nil error, when the key is absent.
	Get(ctx context.Context, key string, dst any) (found bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value any) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// New builds the store selected by cfg.Backend. db is required for the
// sqlite backend and ignored otherwise.
func New(ctx context.Context, cfg config.StateConfig, valkeyCfg config.ValkeyConfig, db *database.DB) (Store, error) {
	switch cfg.Backend {
	case config.StateBackendMemory:
		return NewMemoryStore(cfg.KeyPrefix), nil
	case config.StateBackendSQLite:
		if db == nil {
			return nil, fmt.Errorf("%w: sqlite backend needs a database", ErrUnknownBackend)
		}
		return NewSQLiteStore(db, cfg.KeyPrefix), nil
	case config.StateBackendValkey:
		return NewValkeyStore(ctx, valkeyCfg, cfg.KeyPrefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// keyspace prefixes keys for one deployment.
type keyspace string

func (k keyspace) key(key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	return string(k) + key, nil
}

func encode(key string, value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEncode, key, err)
	}
	return data, nil
}

func decode(key string, data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, key, err)
	}
	return nil
}
