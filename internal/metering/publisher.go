package metering

import (
	"context"
	"time"

	"claude_gateway/internal/models"
	"claude_gateway/internal/queue"
)

// DefaultPublishTimeout bounds how long a publish may wait on a full queue.
const DefaultPublishTimeout = 2 * time.Second

// QueuePublisher publishes usage events onto a queue consumed by the usage
// worker.
type QueuePublisher struct {
	queue   queue.Queue[*models.UsageEvent]
	timeout time.Duration
}

// NewQueuePublisher creates a publisher for q.
func NewQueuePublisher(q queue.Queue[*models.UsageEvent], timeout time.Duration) *QueuePublisher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &QueuePublisher{queue: q, timeout: timeout}
}

func (p *QueuePublisher) Publish(ctx context.Context, event *models.UsageEvent) error {
	if event == nil || event.IsEmpty() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.queue.Enqueue(ctx, event)
}
