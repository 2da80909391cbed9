package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"claude_gateway/internal/models"
)

// ModelRepository handles model policy database operations with caching.
// Absent ids are cached too, as a nil entry, since most requests name a
// catalog model that has no policy.
type ModelRepository struct {
	db    *DB
	cache *LRUCache[string, *models.ModelPolicy]
}

// NewModelRepository creates a new model repository
func NewModelRepository(db *DB) *ModelRepository {
	return &ModelRepository{
		db:    db,
		cache: db.GetModelCache(),
	}
}

// GetModelPolicyByID retrieves a model policy by ID (with caching)
func (r *ModelRepository) GetModelPolicyByID(ctx context.Context, id string) (*models.ModelPolicy, error) {
	if cached, found := r.cache.Get(id); found {
		if cached == nil {
			return nil, ErrModelNotFound
		}
		return cached, nil
	}

	var policy models.ModelPolicy
	query := r.db.rebind(`SELECT id, name, base_model_id, params FROM models WHERE id = ?`)

	if err := r.db.conn.GetContext(ctx, &policy, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.cache.Set(id, nil)
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to get model policy: %w", err)
	}

	r.cache.Set(id, &policy)
	return &policy, nil
}

// List returns all model policies
func (r *ModelRepository) List(ctx context.Context) ([]*models.ModelPolicy, error) {
	var policies []*models.ModelPolicy
	query := `SELECT id, name, base_model_id, params FROM models ORDER BY id`

	if err := r.db.conn.SelectContext(ctx, &policies, query); err != nil {
		return nil, fmt.Errorf("failed to list model policies: %w", err)
	}

	return policies, nil
}

// Create inserts a model policy
func (r *ModelRepository) Create(ctx context.Context, policy *models.ModelPolicy) error {
	query := r.db.rebind(`INSERT INTO models (id, name, base_model_id, params) VALUES (?, ?, ?, ?)`)

	if _, err := r.db.conn.ExecContext(ctx, query, policy.ID, policy.Name, policy.BaseModelID, policy.Params); err != nil {
		return fmt.Errorf("failed to create model policy: %w", err)
	}

	r.cache.Delete(policy.ID)
	return nil
}

// Update replaces a model policy and invalidates its cache entry
func (r *ModelRepository) Update(ctx context.Context, policy *models.ModelPolicy) error {
	query := r.db.rebind(`UPDATE models SET name = ?, base_model_id = ?, params = ? WHERE id = ?`)

	result, err := r.db.conn.ExecContext(ctx, query, policy.Name, policy.BaseModelID, policy.Params, policy.ID)
	if err != nil {
		return fmt.Errorf("failed to update model policy: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrModelNotFound
	}

	r.cache.Delete(policy.ID)
	return nil
}
