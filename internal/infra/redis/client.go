package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis operations used for shared cooldown state.
type Client struct {
	rdb redis.UniversalClient
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewFromUniversal wraps an existing client.
func NewFromUniversal(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// LoadTimestamps reads a hash of member -> epoch seconds.
// Members whose value does not parse are skipped.
func (c *Client) LoadTimestamps(ctx context.Context, key string) (map[string]float64, error) {
	raw, err := c.rdb.HGetAll(ctx, key).Result()
	if err == redis.Nil {
		return map[string]float64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}

	out := make(map[string]float64, len(raw))
	for member, v := range raw {
		ts, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out[member] = ts
	}
	return out, nil
}

// ReplaceTimestamps rewrites the hash wholesale in one MULTI/EXEC.
func (c *Client) ReplaceTimestamps(ctx context.Context, key string, values map[string]float64) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) == 0 {
			return nil
		}
		fields := make(map[string]any, len(values))
		for member, ts := range values {
			fields[member] = strconv.FormatFloat(ts, 'f', -1, 64)
		}
		pipe.HSet(ctx, key, fields)
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}
