package queue

import "errors"

// ErrQueueClosed is returned by Enqueue after Close, and by dequeue calls
// once a closed queue has no items left.
var ErrQueueClosed = errors.New("queue is closed")

// ErrItemNotFound is returned when a dead letter id is unknown.
var ErrItemNotFound = errors.New("dead letter item not found")

// ErrNoDeadLetterQueue is returned by dead letter operations of a consumer
// running without one.
var ErrNoDeadLetterQueue = errors.New("dead letter queue not configured")
