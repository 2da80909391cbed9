package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue using a Redis list. Items are JSON encoded.
type RedisQueue[T any] struct {
	client *redis.Client
	config *Config
	qKey   string
	closed atomic.Bool
}

// NewRedisQueue creates a queue on an existing client. The client stays
// owned by the caller.
func NewRedisQueue[T any](client *redis.Client, config *Config) *RedisQueue[T] {
	if config == nil {
		config = DefaultConfig("default")
	}
	return &RedisQueue[T]{
		client: client,
		config: config,
		qKey:   fmt.Sprintf("queue:%s", config.Name),
	}
}

// Enqueue adds an item to the queue
func (q *RedisQueue[T]) Enqueue(ctx context.Context, item T) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	data, err := sonic.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	if err := q.client.RPush(ctx, q.qKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push to Redis: %w", err)
	}

	return nil
}

// Dequeue retrieves items from the queue
func (q *RedisQueue[T]) Dequeue(ctx context.Context, maxItems int) ([]T, error) {
	return q.pop(ctx, maxItems, 0)
}

// DequeueWithTimeout retrieves items with a timeout
func (q *RedisQueue[T]) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error) {
	return q.pop(ctx, maxItems, timeout)
}

func (q *RedisQueue[T]) pop(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error) {
	if q.closed.Load() {
		return nil, ErrQueueClosed
	}

	// Block until item is available or timeout; 0 blocks indefinitely
	result, err := q.client.BLPop(ctx, timeout, q.qKey).Result()
	if errors.Is(err, redis.Nil) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from Redis: %w", err)
	}

	items := make([]T, 0, maxItems)
	// result[0] is the key, result[1] is the value
	if item, err := q.decode(result[1]); err == nil {
		items = append(items, item)
	}

	// Try to get more items without blocking
	for len(items) < maxItems {
		raw, err := q.client.LPop(ctx, q.qKey).Result()
		if err != nil {
			break
		}
		if item, err := q.decode(raw); err == nil {
			items = append(items, item)
		}
	}

	return items, nil
}

func (q *RedisQueue[T]) decode(raw string) (T, error) {
	var item T
	err := sonic.UnmarshalString(raw, &item)
	return item, err
}

// Length returns the current queue length
func (q *RedisQueue[T]) Length(ctx context.Context) (int, error) {
	length, err := q.client.LLen(ctx, q.qKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return int(length), nil
}

// Close stops accepting items. Pending items stay in Redis.
func (q *RedisQueue[T]) Close() error {
	q.closed.Store(true)
	return nil
}

// RedisDeadLetterQueue implements DeadLetterQueue using a Redis hash
type RedisDeadLetterQueue[T any] struct {
	client *redis.Client
	dlKey  string
}

// NewRedisDeadLetterQueue creates a dead letter queue on an existing client
func NewRedisDeadLetterQueue[T any](client *redis.Client, config *Config) *RedisDeadLetterQueue[T] {
	if config == nil {
		config = DefaultConfig("default")
	}
	return &RedisDeadLetterQueue[T]{
		client: client,
		dlKey:  fmt.Sprintf("dlq:%s", config.Name),
	}
}

// Add adds a failed item to the dead letter queue
func (q *RedisDeadLetterQueue[T]) Add(ctx context.Context, item T, err error) error {
	dlItem := newDeadLetterItem(item, err)

	data, marshalErr := sonic.Marshal(dlItem)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal dead letter item: %w", marshalErr)
	}

	if err := q.client.HSet(ctx, q.dlKey, dlItem.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter queue: %w", err)
	}

	return nil
}

// List retrieves items from the dead letter queue, oldest first
func (q *RedisDeadLetterQueue[T]) List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error) {
	results, err := q.client.HGetAll(ctx, q.dlKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter items: %w", err)
	}

	items := make([]DeadLetterItem[T], 0, len(results))
	for _, data := range results {
		var dlItem DeadLetterItem[T]
		if err := sonic.UnmarshalString(data, &dlItem); err != nil {
			continue // Skip malformed items
		}
		items = append(items, dlItem)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Timestamp.Before(items[j].Timestamp)
	})
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}
	return items, nil
}

// Remove removes an item from the dead letter queue
func (q *RedisDeadLetterQueue[T]) Remove(ctx context.Context, id string) error {
	n, err := q.client.HDel(ctx, q.dlKey, id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove from dead letter queue: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Close is a no-op; the client is owned by the caller
func (q *RedisDeadLetterQueue[T]) Close() error {
	return nil
}
