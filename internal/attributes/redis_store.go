package attributes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultHashKey = "marketplace:attribute_catalog"

// RedisStore persists definitions as JSON values of one Redis hash, keyed by
// attribute key. A store without a client is a no-op so the catalog degrades to
// process memory.
type RedisStore struct {
	client  *redis.Client
	hashKey string
}

func NewRedisStore(client *redis.Client, hashKey string) *RedisStore {
	if hashKey == "" {
		hashKey = defaultHashKey
	}
	return &RedisStore{client: client, hashKey: hashKey}
}

// DialRedis parses a redis:// URL and checks the connection.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (r *RedisStore) Enabled() bool {
	return r != nil && r.client != nil
}

func (r *RedisStore) LoadAll(ctx context.Context) ([]Definition, error) {
	if !r.Enabled() {
		return nil, nil
	}

	raw, err := r.client.HGetAll(ctx, r.hashKey).Result()
	if err != nil {
		return nil, err
	}

	definitions := make([]Definition, 0, len(raw))
	for field, value := range raw {
		var definition Definition
		if err := json.Unmarshal([]byte(value), &definition); err != nil {
			return nil, fmt.Errorf("decode attribute %q: %w", field, err)
		}
		definitions = append(definitions, definition)
	}
	return definitions, nil
}

func (r *RedisStore) Save(ctx context.Context, definition Definition) error {
	if !r.Enabled() {
		return nil
	}

	data, err := json.Marshal(definition)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.hashKey, definition.KeyName, data).Err()
}

func (r *RedisStore) Delete(ctx context.Context, keyName string) error {
	if !r.Enabled() {
		return nil
	}
	return r.client.HDel(ctx, r.hashKey, keyName).Err()
}

func (r *RedisStore) Close() error {
	if !r.Enabled() {
		return nil
	}
	return r.client.Close()
}
