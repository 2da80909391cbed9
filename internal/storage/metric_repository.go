package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"claude_gateway/internal/models"
)

// MetricRepository accrues usage events into per-day buckets
type MetricRepository struct {
	db    *DB
	users *UserRepository
}

// NewMetricRepository creates a new metric repository
func NewMetricRepository(db *DB) *MetricRepository {
	return &MetricRepository{db: db, users: NewUserRepository(db)}
}

const metricColumns = `id, user_id, chat_id, model_id, date, input_tokens, output_tokens, message_count`

const chatAggregate = `SELECT chat_id,
	COALESCE(SUM(input_tokens), 0) AS input_tokens,
	COALESCE(SUM(output_tokens), 0) AS output_tokens,
	COALESCE(SUM(message_count), 0) AS message_count
FROM metrics`

func (r *MetricRepository) upsertQuery() string {
	const insert = `INSERT INTO metrics (user_id, chat_id, model_id, date, input_tokens, output_tokens, message_count)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	if r.db.dialect == DialectMySQL {
		return insert + `
ON DUPLICATE KEY UPDATE
	input_tokens = input_tokens + VALUES(input_tokens),
	output_tokens = output_tokens + VALUES(output_tokens),
	message_count = message_count + VALUES(message_count)`
	}

	return r.db.rebind(insert + `
ON CONFLICT (user_id, chat_id, model_id, date) DO UPDATE SET
	input_tokens = metrics.input_tokens + excluded.input_tokens,
	output_tokens = metrics.output_tokens + excluded.output_tokens,
	message_count = metrics.message_count + excluded.message_count`)
}

// Apply adds one usage event to its bucket and to the user's token counter
// in a single transaction. Both writes increment in SQL, so concurrent
// applies to the same bucket are lossless. Events are not deduplicated.
func (r *MetricRepository) Apply(ctx context.Context, event *models.UsageEvent) error {
	if event == nil || event.IsEmpty() {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.upsertQuery(),
		event.UserID, event.ChatID, event.ModelID, event.Date,
		event.InputTokens, event.OutputTokens, event.MessageCount,
	); err != nil {
		return fmt.Errorf("failed to upsert metric: %w", err)
	}

	if err := r.users.incrementTokenCount(ctx, tx, event.UserID, event.TotalTokens()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// List returns every usage bucket
func (r *MetricRepository) List(ctx context.Context) ([]*models.Metric, error) {
	metrics := []*models.Metric{}
	query := `SELECT ` + metricColumns + ` FROM metrics ORDER BY id`

	if err := r.db.conn.SelectContext(ctx, &metrics, query); err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	return metrics, nil
}

// Get returns a single bucket
func (r *MetricRepository) Get(ctx context.Context, userID, chatID, modelID, date string) (*models.Metric, error) {
	var metric models.Metric
	query := r.db.rebind(`SELECT ` + metricColumns + ` FROM metrics
WHERE user_id = ? AND chat_id = ? AND model_id = ? AND date = ?`)

	if err := r.db.conn.GetContext(ctx, &metric, query, userID, chatID, modelID, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMetricNotFound
		}
		return nil, fmt.Errorf("failed to get metric: %w", err)
	}
	return &metric, nil
}

// ByChats aggregates every bucket per chat, keyed by chat ID
func (r *MetricRepository) ByChats(ctx context.Context) (map[string]*models.ChatMetric, error) {
	var rows []*models.ChatMetric
	query := chatAggregate + ` GROUP BY chat_id`

	if err := r.db.conn.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to aggregate metrics: %w", err)
	}
	return indexByChat(rows), nil
}

// ByChatsForInstructor aggregates the chats an instructor can see: chats in
// classes they teach, and their own chats outside any class.
func (r *MetricRepository) ByChatsForInstructor(ctx context.Context, instructorID string) (map[string]*models.ChatMetric, error) {
	var rows []*models.ChatMetric
	query := r.db.rebind(`SELECT metrics.chat_id AS chat_id,
	COALESCE(SUM(metrics.input_tokens), 0) AS input_tokens,
	COALESCE(SUM(metrics.output_tokens), 0) AS output_tokens,
	COALESCE(SUM(metrics.message_count), 0) AS message_count
FROM metrics
JOIN chats ON metrics.chat_id = chats.id
LEFT JOIN classes ON chats.class_id = classes.id
WHERE classes.instructor_id = ? OR (classes.id IS NULL AND chats.user_id = ?)
GROUP BY metrics.chat_id`)

	if err := r.db.conn.SelectContext(ctx, &rows, query, instructorID, instructorID); err != nil {
		return nil, fmt.Errorf("failed to aggregate instructor metrics: %w", err)
	}
	return indexByChat(rows), nil
}

// ByChatID aggregates the buckets of one chat
func (r *MetricRepository) ByChatID(ctx context.Context, chatID string) (*models.ChatMetric, error) {
	var rows []*models.ChatMetric
	query := r.db.rebind(chatAggregate + ` WHERE chat_id = ? GROUP BY chat_id`)

	if err := r.db.conn.SelectContext(ctx, &rows, query, chatID); err != nil {
		return nil, fmt.Errorf("failed to aggregate chat metrics: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrMetricNotFound
	}
	return rows[0], nil
}

func indexByChat(rows []*models.ChatMetric) map[string]*models.ChatMetric {
	out := make(map[string]*models.ChatMetric, len(rows))
	for _, row := range rows {
		out[row.ChatID] = row
	}
	return out
}
