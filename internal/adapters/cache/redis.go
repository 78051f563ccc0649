package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"vigil/internal/domain"
)

// Redis is the shared tier. Expiry is pushed down to the store via SETEX; all
// client errors degrade to a miss or a dropped write with a warning, never a
// failure surfaced to the query path.
type Redis struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedis connects using a redis:// URL and verifies the connection.
func NewRedis(ctx context.Context, rawURL string, log *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{client: client, log: log}, nil
}

func (r *Redis) Close() error { return r.client.Close() }

func redisKey(iocType domain.IOCType, iocValue string) string {
	return "ioc:" + strings.ToLower(string(iocType)) + ":" + strings.ToLower(iocValue)
}

func (r *Redis) Get(ctx context.Context, iocType domain.IOCType, iocValue string) (domain.QueryResult, bool) {
	raw, err := r.client.Get(ctx, redisKey(iocType, iocValue)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("redis get failed", "err", err)
		}
		return domain.QueryResult{}, false
	}
	var result domain.QueryResult
	if err := json.Unmarshal(raw, &result); err != nil {
		r.log.Warn("discarding undecodable cached result", "err", err)
		return domain.QueryResult{}, false
	}
	return result, true
}

func (r *Redis) Set(ctx context.Context, result domain.QueryResult, ttl time.Duration) {
	raw, err := json.Marshal(result)
	if err != nil {
		r.log.Warn("redis set: encode failed", "err", err)
		return
	}
	if err := r.client.SetEx(ctx, redisKey(result.IOCType, result.IOCValue), raw, ttl).Err(); err != nil {
		r.log.Warn("redis set failed", "err", err)
	}
}
