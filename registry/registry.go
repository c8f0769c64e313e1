// Package registry records which process runs which session, in a Redis
// hash keyed by session id.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"reel-scout/config"
)

const (
	DefaultKey  = "reel-scout:sessions"
	pingTimeout = 5 * time.Second
)

var ErrEmptyAddress = errors.New("redis address is required")

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

type Redis struct {
	client *redis.Client
	key    string
}

func New(client *redis.Client) *Redis {
	return &Redis{client: client, key: DefaultKey}
}

// Register records pid as the process running sessionID.
func (r *Redis) Register(ctx context.Context, sessionID string, pid int) error {
	if err := r.client.HSet(ctx, r.key, sessionID, pid).Err(); err != nil {
		return fmt.Errorf("register session %s: %w", sessionID, err)
	}
	return nil
}

// Lookup returns the pid recorded for sessionID.
func (r *Redis) Lookup(ctx context.Context, sessionID string) (int, bool, error) {
	v, err := r.client.HGet(ctx, r.key, sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup session %s: %w", sessionID, err)
	}
	pid, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt pid for session %s: %w", sessionID, err)
	}
	return pid, true, nil
}

func (r *Redis) Remove(ctx context.Context, sessionID string) error {
	if err := r.client.HDel(ctx, r.key, sessionID).Err(); err != nil {
		return fmt.Errorf("remove session %s: %w", sessionID, err)
	}
	return nil
}

// All returns every registered session with its pid. Unparseable entries
// are skipped.
func (r *Redis) All(ctx context.Context) (map[string]int, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make(map[string]int, len(raw))
	for id, v := range raw {
		if pid, err := strconv.Atoi(v); err == nil {
			out[id] = pid
		}
	}
	return out, nil
}
