package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"commerce-service/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/complete_idempotency.lua
var completeIdempotencyScript string

//go:embed scripts/release_idempotency.lua
var releaseIdempotencyScript string

const idempotencyPrefix = "idempotency:"

type Client struct {
	rdb            *redis.Client
	completeScript *redis.Script
	releaseScript  *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb), nil
}

func newClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:            rdb,
		completeScript: redis.NewScript(completeIdempotencyScript),
		releaseScript:  redis.NewScript(releaseIdempotencyScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// AcquireIdempotencyKey marks key as PROCESSING if it is not already present.
// Returns false when another request owns or has completed the key.
func (c *Client) AcquireIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, idempotencyPrefix+key, string(models.IdempotencyProcessing), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire idempotency key: %w", err)
	}
	return ok, nil
}

// CompleteIdempotencyKey swaps a PROCESSING key for the processed record.
// Returns false if the key no longer holds PROCESSING (expired or released).
func (c *Client) CompleteIdempotencyKey(ctx context.Context, key string, record *models.IdempotencyRecord, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("marshal idempotency record: %w", err)
	}

	result, err := c.completeScript.Run(ctx, c.rdb, []string{idempotencyPrefix + key},
		string(models.IdempotencyProcessing), string(payload), ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("complete idempotency script failed: %w", err)
	}

	swapped, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return swapped == 1, nil
}

// ReleaseIdempotencyKey deletes key while it is still PROCESSING so the client may retry
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{idempotencyPrefix + key},
		string(models.IdempotencyProcessing)).Result()
	if err != nil {
		return fmt.Errorf("release idempotency script failed: %w", err)
	}
	return nil
}

// GetIdempotencyRecord returns the stored record for key, or nil when absent
func (c *Client) GetIdempotencyRecord(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	value, err := c.rdb.Get(ctx, idempotencyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}

	if value == string(models.IdempotencyProcessing) {
		return &models.IdempotencyRecord{State: models.IdempotencyProcessing}, nil
	}

	var record models.IdempotencyRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &record, nil
}
