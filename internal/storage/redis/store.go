package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"payPlanner/internal/storage"
)

// KeyPrefix namespaces history keys.
const KeyPrefix = "payplanner:history:"

// commands is the subset of the redis client the store calls.
type commands interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// Store keeps per-account payment history as redis string keys.
type Store struct {
	rdb    commands
	closer func() error
}

// Dial connects to url and pings the server.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("redis connected", zap.String("addr", opts.Addr))
	return &Store{rdb: client, closer: client.Close}, nil
}

func newStore(rdb commands) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func key(account string) string {
	return KeyPrefix + storage.AccountKey(account)
}

// Load returns the stored payload for account.
func (s *Store) Load(ctx context.Context, account string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, key(account)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Save replaces the payload for account.
func (s *Store) Save(ctx context.Context, account string, data []byte) error {
	return s.rdb.Set(ctx, key(account), data, 0).Err()
}

// Delete removes the account's key.
func (s *Store) Delete(ctx context.Context, account string) error {
	return s.rdb.Del(ctx, key(account)).Err()
}
