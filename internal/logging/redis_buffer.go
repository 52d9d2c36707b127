package logging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBuffer queues request-log records in a capped Redis list so an
// external consumer can drain them. Oldest entries are dropped when the list
// is full.
type RedisBuffer struct {
	client   *redis.Client
	queueKey string
	maxSize  int64
}

// RedisBufferConfig holds configuration for the Redis buffer
type RedisBufferConfig struct {
	QueueKey string
	MaxSize  int64 // 0 = unlimited
}

// NewRedisBuffer creates a Redis-backed request-log buffer
func NewRedisBuffer(client *redis.Client, cfg RedisBufferConfig) *RedisBuffer {
	if cfg.QueueKey == "" {
		cfg.QueueKey = "gateway:usage-logs"
	}
	return &RedisBuffer{
		client:   client,
		queueKey: cfg.QueueKey,
		maxSize:  cfg.MaxSize,
	}
}

// enqueueScript pushes and trims atomically so the list never exceeds max_size.
var enqueueScript = redis.NewScript(`
	local key = KEYS[1]
	local value = ARGV[1]
	local max_size = tonumber(ARGV[2])

	redis.call('RPUSH', key, value)

	local len = redis.call('LLEN', key)
	if len > max_size then
		redis.call('LTRIM', key, len - max_size, -1)
	end

	return len
`)

// Enqueue appends a record to the queue
func (rb *RedisBuffer) Enqueue(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if rb.maxSize > 0 {
		if _, err := enqueueScript.Run(ctx, rb.client, []string{rb.queueKey}, data, rb.maxSize).Result(); err != nil {
			return fmt.Errorf("failed to enqueue record: %w", err)
		}
		return nil
	}

	if err := rb.client.RPush(ctx, rb.queueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue record: %w", err)
	}
	return nil
}

// Dequeue removes and returns up to count records, oldest first
func (rb *RedisBuffer) Dequeue(ctx context.Context, count int) ([]*Record, error) {
	if count <= 0 {
		count = 100
	}

	script := redis.NewScript(`
		local key = KEYS[1]
		local count = tonumber(ARGV[1])

		local records = redis.call('LRANGE', key, 0, count - 1)
		if #records > 0 then
			redis.call('LTRIM', key, #records, -1)
		end

		return records
	`)

	result, err := script.Run(ctx, rb.client, []string{rb.queueKey}, count).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	records := make([]*Record, 0, len(result))
	for i, data := range result {
		var rec Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %d: %w", i, err)
		}
		records = append(records, &rec)
	}
	return records, nil
}

// Size returns the current queue length
func (rb *RedisBuffer) Size(ctx context.Context) (int64, error) {
	return rb.client.LLen(ctx, rb.queueKey).Result()
}
