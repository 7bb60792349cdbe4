package statestore

import (
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"

	"github.com/nerrad567/avbridge/internal/infrastructure/config"
)

// ValkeyStore keeps values as plain string keys on a Valkey server.
type ValkeyStore struct {
	client valkey.Client
	prefix keyspace
}

// NewValkeyStore connects to the server in cfg and checks it answers PING.
func NewValkeyStore(ctx context.Context, cfg config.ValkeyConfig, prefix string) (*ValkeyStore, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.Address},
		Username:    cfg.Username,
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to valkey at %s: %w", cfg.Address, err)
	}

	s := NewValkeyStoreWithClient(client, prefix)
	if err := s.HealthCheck(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// NewValkeyStoreWithClient wraps an existing client.
func NewValkeyStoreWithClient(client valkey.Client, prefix string) *ValkeyStore {
	return &ValkeyStore{client: client, prefix: keyspace(prefix)}
}

// HealthCheck pings the server.
func (s *ValkeyStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("valkey health check failed: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *ValkeyStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	k, err := s.prefix.key(key)
	if err != nil {
		return false, err
	}
	data, err := s.client.Do(ctx, s.client.B().Get().Key(k).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading state %s: %w", key, err)
	}
	if err := decode(key, data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set implements Store.
func (s *ValkeyStore) Set(ctx context.Context, key string, value any) error {
	k, err := s.prefix.key(key)
	if err != nil {
		return err
	}
	data, err := encode(key, value)
	if err != nil {
		return err
	}
	cmd := s.client.B().Set().Key(k).Value(valkey.BinaryString(data)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("writing state %s: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (s *ValkeyStore) Delete(ctx context.Context, key string) error {
	k, err := s.prefix.key(key)
	if err != nil {
		return err
	}
	if err := s.client.Do(ctx, s.client.B().Del().Key(k).Build()).Error(); err != nil {
		return fmt.Errorf("deleting state %s: %w", key, err)
	}
	return nil
}

// Close implements Store.
func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}
