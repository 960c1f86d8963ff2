package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lorrc/accounts/internal/core/ports"
)

const defaultPrefix = "accounts:"

// ProfileStore is a ports.DataStore keeping one JSON string per path.
type ProfileStore struct {
	client *goredis.Client
	prefix string
	logger *slog.Logger
}

var _ ports.DataStore = (*ProfileStore)(nil)

// NewProfileStore wraps a connected client.
func NewProfileStore(client *goredis.Client, logger *slog.Logger) *ProfileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileStore{
		client: client,
		prefix: defaultPrefix,
		logger: logger.With("component", "redis_store"),
	}
}

// Open connects using a redis:// or rediss:// URL and checks the connection.
func Open(ctx context.Context, url string, logger *slog.Logger) (*ProfileStore, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewProfileStore(client, logger), nil
}

func (s *ProfileStore) key(ref ports.Reference) string {
	return s.prefix + ref.Key()
}

func (s *ProfileStore) SetValue(ctx context.Context, ref ports.Reference, value map[string]any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis store: failed to marshal: %w", err)
	}

	if err := s.client.Set(ctx, s.key(ref), data, 0).Err(); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "node written", "key", ref.Key())
	return nil
}

// GetData returns the node at ref, or nil when the key does not exist.
func (s *ProfileStore) GetData(ctx context.Context, ref ports.Reference) (any, error) {
	val, err := s.client.Get(ctx, s.key(ref)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var value any
	if err := json.Unmarshal([]byte(val), &value); err != nil {
		return nil, fmt.Errorf("redis store: failed to unmarshal: %w", err)
	}
	return value, nil
}

func (s *ProfileStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *ProfileStore) Close() error {
	return s.client.Close()
}
