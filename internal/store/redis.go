package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"shopsync/internal/model"
)

// sessionTTL expires abandoned guest sessions. Every save refreshes the
// window, so an active session never expires mid-visit.
const sessionTTL = 30 * 24 * time.Hour

// RedisStore persists collections in Redis, one JSON value per
// (session, kind) pair.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis at addr. Accepts either a bare
// "host:port" or a redis:// URL.
func NewRedisStore(addr string) (*RedisStore, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{
			Addr:         addr,
			MinIdleConns: 1,
			DialTimeout:  10 * time.Second,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		}
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func (r *RedisStore) Load(ctx context.Context, sessionID string, kind model.Kind) (*model.Collection, error) {
	val, err := r.client.Get(ctx, redisKey(sessionID, kind)).Result()
	if err == redis.Nil {
		return model.NewCollection(kind), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var col model.Collection
	if err := json.Unmarshal([]byte(val), &col); err != nil {
		return nil, fmt.Errorf("decoding stored collection: %w", err)
	}
	if col.Items == nil {
		col.Items = []model.LineItem{}
	}
	return &col, nil
}

func (r *RedisStore) Save(ctx context.Context, sessionID string, kind model.Kind, col *model.Collection) error {
	data, err := json.Marshal(col)
	if err != nil {
		return fmt.Errorf("encoding collection: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(sessionID, kind), data, sessionTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string, kind model.Kind) error {
	if err := r.client.Del(ctx, redisKey(sessionID, kind)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.client.Ping(pingCtx).Err()
}

func redisKey(sessionID string, kind model.Kind) string {
	return "shopsync:" + string(kind) + ":" + sessionID
}
