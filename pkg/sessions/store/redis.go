package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding one field per session id.
const DefaultRedisKey = "browserflow:ports"

// Redis stores entries as JSON values in a single hash.
type Redis struct {
	client redis.UniversalClient
	key    string
	logger *slog.Logger
}

// NewRedis connects using a redis:// URL and pings the server.
func NewRedis(ctx context.Context, logger *slog.Logger, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr, "db", opts.DB)

	return NewRedisWithClient(client, DefaultRedisKey, logger), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, key string, logger *slog.Logger) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}

	return &Redis{
		client: client,
		key:    key,
		logger: logger.With("module", "session_store", "provider", "redis"),
	}
}

func (r *Redis) Get(ctx context.Context, sessionID string) (Entry, error) {
	raw, err := r.client.HGet(ctx, r.key, sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, ErrNotFound
		}

		return Entry{}, fmt.Errorf("failed to get session entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, fmt.Errorf("failed to decode session entry %s: %w", sessionID, err)
	}

	return entry, nil
}

func (r *Redis) Set(ctx context.Context, sessionID string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode session entry: %w", err)
	}

	if err := r.client.HSet(ctx, r.key, sessionID, data).Err(); err != nil {
		return fmt.Errorf("failed to set session entry: %w", err)
	}

	return nil
}

func (r *Redis) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.HDel(ctx, r.key, sessionID).Err(); err != nil {
		return fmt.Errorf("failed to delete session entry: %w", err)
	}

	return nil
}

func (r *Redis) All(ctx context.Context) (map[string]Entry, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session entries: %w", err)
	}

	entries := make(map[string]Entry, len(raw))

	for sessionID, value := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			r.logger.WarnContext(ctx, "Skipping undecodable session entry", "session_id", sessionID, "error", err)

			continue
		}

		entries[sessionID] = entry
	}

	return entries, nil
}

func (r *Redis) Close(_ context.Context) error {
	return r.client.Close()
}
