// Package queue provides the usage event hand-off between the proxy path
// and the metering worker, with two backends:
//
// 1. Memory queue (buffered channel):
//   - No persistence, events are lost on restart
//   - Suitable for single-node deployments and tests
//
// 2. Redis queue (Redis list):
//   - Survives gateway restarts
//   - Lets several gateway replicas share one worker pool
//
// Flow:
//
//	┌──────────────┐  Publish   ┌─────────────┐  DequeueWithTimeout  ┌──────────────┐
//	│ Stream meter │ ─────────▶ │ Usage queue │ ───────────────────▶ │ Usage worker │
//	└──────────────┘            └─────────────┘                      └──────┬───────┘
//	                                                                        │ retry with backoff
//	                                                       ┌────────────────┼──────────┐
//	                                                       ▼                           ▼
//	                                                ┌──────────────┐             ┌───────────┐
//	                                                │ metric table │             │    DLQ    │
//	                                                └──────────────┘             └───────────┘
package queue

import (
	"context"
	"time"
)

// Queue is a FIFO of items of type T.
type Queue[T any] interface {
	// Enqueue adds an item to the queue
	Enqueue(ctx context.Context, item T) error

	// Dequeue retrieves up to maxItems items.
	// Blocks until at least one item is available or context is cancelled
	Dequeue(ctx context.Context, maxItems int) ([]T, error)

	// DequeueWithTimeout retrieves up to maxItems items, waiting at most
	// timeout for the first one. Returns an empty slice on timeout
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue gracefully
	Close() error
}

// DeadLetterQueue holds items that could not be processed.
type DeadLetterQueue[T any] interface {
	// Add adds a failed item to the dead letter queue with error info
	Add(ctx context.Context, item T, err error) error

	// List retrieves items from the dead letter queue
	List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error)

	// Remove removes an item from the dead letter queue
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue
	Close() error
}

// DeadLetterItem represents an item in the dead letter queue
type DeadLetterItem[T any] struct {
	ID        string    `json:"id"`
	Item      T         `json:"item"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	Retries   int       `json:"retries"`
}

// Config holds queue configuration
type Config struct {
	// Name is the queue name; Redis keys are derived from it
	Name string

	// BatchSize is the maximum number of items to process in a batch
	BatchSize int

	// BatchTimeout is how long to wait before processing a partial batch
	BatchTimeout time.Duration

	// MaxRetries is the maximum number of retry attempts
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries
	RetryBackoff time.Duration
}

// DefaultConfig returns default queue configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:         name,
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
	}
}
