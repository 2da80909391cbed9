package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"claude_gateway/internal/models"
	"claude_gateway/internal/queue"
	"claude_gateway/internal/utils"
)

// drainPollTimeout is how long Drain waits for a further item before it
// considers the queue empty.
const drainPollTimeout = 100 * time.Millisecond

// UsageApplier persists one usage event
type UsageApplier interface {
	Apply(ctx context.Context, event *models.UsageEvent) error
}

// WorkerStats counts events handled by a UsageQueueWorker
type WorkerStats struct {
	Applied      int64 `json:"applied"`
	DeadLettered int64 `json:"dead_lettered"`
}

// UsageQueueWorker drains usage events from the queue into storage
type UsageQueueWorker struct {
	queue       queue.Queue[*models.UsageEvent]
	dlq         queue.DeadLetterQueue[*models.UsageEvent]
	applier     UsageApplier
	config      *queue.Config
	logger      *utils.Logger
	stopChan    chan struct{}
	stoppedChan chan struct{}
	stopOnce    sync.Once
	started     atomic.Bool

	applied      atomic.Int64
	deadLettered atomic.Int64
}

// NewUsageQueueWorker creates a new usage queue worker. dlq may be nil, in
// which case events that exhaust their retries are dropped and logged.
func NewUsageQueueWorker(q queue.Queue[*models.UsageEvent], dlq queue.DeadLetterQueue[*models.UsageEvent], applier UsageApplier, config *queue.Config) *UsageQueueWorker {
	if config == nil {
		config = queue.DefaultConfig("usage")
	}

	return &UsageQueueWorker{
		queue:       q,
		dlq:         dlq,
		applier:     applier,
		config:      config,
		logger:      utils.NewLogger("usage-worker"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine. Cancelling ctx stops the loop between
// batches; a batch already dequeued is applied in full.
func (w *UsageQueueWorker) Start(ctx context.Context) {
	w.started.Store(true)
	go w.run(ctx)
}

// Stop gracefully stops the worker. Items still queued stay queued; call
// Drain to apply them.
func (w *UsageQueueWorker) Stop() error {
	w.stopOnce.Do(func() { close(w.stopChan) })
	if w.started.Load() {
		<-w.stoppedChan
	}
	return nil
}

// Drain applies every queued event until the queue is empty or ctx is done.
// It is meant for shutdown, after Stop.
func (w *UsageQueueWorker) Drain(ctx context.Context) error {
	for {
		items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, drainPollTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) {
				return nil
			}
			return fmt.Errorf("drain usage queue: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		w.processItems(ctx, items)
	}
}

// run is the main worker loop
func (w *UsageQueueWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)
	work := context.WithoutCancel(ctx)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Usage worker stopping")
			return
		case <-ctx.Done():
			w.logger.Info("Usage worker context cancelled")
			return
		default:
			if !w.processBatch(ctx, work) {
				return
			}
		}
	}
}

// processBatch handles one dequeued batch. It returns false once the queue
// is closed and drained. Dequeue and apply run on work, which outlives ctx,
// so events taken off the queue are never abandoned half way.
func (w *UsageQueueWorker) processBatch(ctx, work context.Context) bool {
	items, err := w.queue.DequeueWithTimeout(work, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		if errors.Is(err, queue.ErrQueueClosed) {
			w.logger.Info("Usage queue closed")
			return false
		}
		if ctx.Err() != nil {
			return true
		}
		w.logger.Error("Failed to dequeue usage events", "error", err)
		w.sleep(ctx, time.Second, w.stopChan) // Back off on error
		return true
	}

	if len(items) == 0 {
		return true
	}

	w.logger.Debug("Processing usage batch", "count", len(items))
	w.processItems(work, items)
	return true
}

func (w *UsageQueueWorker) processItems(ctx context.Context, items []*models.UsageEvent) {
	for _, event := range items {
		if event == nil {
			continue
		}
		if err := w.processItem(ctx, event); err != nil {
			w.logger.Error("Failed to apply usage event", "error", err)
		}
	}
}

// processItem applies a single usage event with retries
func (w *UsageQueueWorker) processItem(ctx context.Context, event *models.UsageEvent) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			w.logger.Debug("Retrying usage event", "attempt", attempt, "backoff", backoff)
			if !w.sleep(ctx, backoff, nil) {
				lastErr = ctx.Err()
				break
			}
		}

		if err := w.applier.Apply(ctx, event); err != nil {
			lastErr = err
			w.logger.Warn("Failed to apply usage event", "attempt", attempt, "chat", event.ChatID, "error", err)
			continue
		}

		w.applied.Add(1)
		return nil
	}

	// Max retries exceeded - add to dead letter queue
	w.deadLettered.Add(1)
	if w.dlq != nil {
		if err := w.dlq.Add(context.WithoutCancel(ctx), event, lastErr); err != nil {
			w.logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			w.logger.Warn("Usage event moved to DLQ", "user", event.UserID, "chat", event.ChatID,
				"input", event.InputTokens, "output", event.OutputTokens, "error", lastErr)
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// sleep waits for d. It returns false if ctx ends or stop closes first.
func (w *UsageQueueWorker) sleep(ctx context.Context, d time.Duration, stop <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	}
}

// Stats returns how many events were applied and dead-lettered
func (w *UsageQueueWorker) Stats() WorkerStats {
	return WorkerStats{
		Applied:      w.applied.Load(),
		DeadLettered: w.deadLettered.Load(),
	}
}

// GetQueueLength returns the current queue length
func (w *UsageQueueWorker) GetQueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// GetDeadLetterItems returns items from the dead letter queue
func (w *UsageQueueWorker) GetDeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem[*models.UsageEvent], error) {
	if w.dlq == nil {
		return nil, queue.ErrNoDeadLetterQueue
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem re-enqueues a failed event from the dead letter queue
func (w *UsageQueueWorker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return queue.ErrNoDeadLetterQueue
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, dlItem := range items {
		if dlItem.ID != id {
			continue
		}
		if err := w.queue.Enqueue(ctx, dlItem.Item); err != nil {
			return fmt.Errorf("failed to re-enqueue item: %w", err)
		}
		if err := w.dlq.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to remove from DLQ: %w", err)
		}
		return nil
	}

	return queue.ErrItemNotFound
}
