package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one JSON blob per scope under tcards:settings:<scope>.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redisURL and pings it.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	url := strings.TrimSpace(redisURL)
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func redisKey(scope string) string {
	return fmt.Sprintf("tcards:settings:%s", scope)
}

// Load returns the settings saved for scope.
func (s *RedisStore) Load(ctx context.Context, scope string) (Settings, error) {
	data, err := s.client.Get(ctx, redisKey(scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("load settings %s: %w", scope, err)
	}
	var out Settings
	if err := json.Unmarshal(data, &out); err != nil {
		return Default(), fmt.Errorf("decode settings %s: %w", scope, err)
	}
	return out, nil
}

// Save stores the blob for scope without expiry.
func (s *RedisStore) Save(ctx context.Context, scope string, v Settings) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKey(scope), data, 0).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
