package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"claude_gateway/internal/models"
)

// PromptRepository reads prompts and evaluations. Both carry hidden
// system-prompt content and the model their author selected.
type PromptRepository struct {
	db *DB
}

// NewPromptRepository creates a new prompt repository
func NewPromptRepository(db *DB) *PromptRepository {
	return &PromptRepository{db: db}
}

// GetPromptByID retrieves a prompt by ID
func (r *PromptRepository) GetPromptByID(ctx context.Context, id int64) (*models.Prompt, error) {
	var prompt models.Prompt
	query := r.db.rebind(`SELECT id, content, selected_model_id FROM prompts WHERE id = ?`)

	if err := r.db.conn.GetContext(ctx, &prompt, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPromptNotFound
		}
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}

	return &prompt, nil
}

// GetEvaluationByID retrieves an evaluation by ID
func (r *PromptRepository) GetEvaluationByID(ctx context.Context, id int64) (*models.Evaluation, error) {
	var evaluation models.Evaluation
	query := r.db.rebind(`SELECT id, content, selected_model_id FROM evaluations WHERE id = ?`)

	if err := r.db.conn.GetContext(ctx, &evaluation, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEvaluationNotFound
		}
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}

	return &evaluation, nil
}

// CreatePrompt inserts a prompt and sets its generated ID
func (r *PromptRepository) CreatePrompt(ctx context.Context, prompt *models.Prompt) error {
	id, err := r.insert(ctx, "prompts", prompt.Content, prompt.SelectedModelID)
	if err != nil {
		return fmt.Errorf("failed to create prompt: %w", err)
	}
	prompt.ID = id
	return nil
}

// CreateEvaluation inserts an evaluation and sets its generated ID
func (r *PromptRepository) CreateEvaluation(ctx context.Context, evaluation *models.Evaluation) error {
	id, err := r.insert(ctx, "evaluations", evaluation.Content, evaluation.SelectedModelID)
	if err != nil {
		return fmt.Errorf("failed to create evaluation: %w", err)
	}
	evaluation.ID = id
	return nil
}

func (r *PromptRepository) insert(ctx context.Context, table, content, modelID string) (int64, error) {
	query := fmt.Sprintf(`INSERT INTO %s (content, selected_model_id) VALUES (?, ?)`, table)

	// lib/pq does not implement LastInsertId
	if r.db.dialect == DialectPostgres {
		var id int64
		err := r.db.conn.GetContext(ctx, &id, r.db.rebind(query+` RETURNING id`), content, modelID)
		return id, err
	}

	result, err := r.db.conn.ExecContext(ctx, query, content, modelID)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}
