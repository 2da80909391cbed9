package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claude_gateway/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestModelRepository_GetModelPolicyByID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := db.NewModelRepository()

	policy := &models.ModelPolicy{
		ID:          "tutor",
		Name:        "Tutor",
		BaseModelID: ptr("claude-3-haiku"),
		Params: models.ModelParams{
			Temperature: ptr(0.2),
			MaxTokens:   ptr(512),
			Stop:        []string{`\n\nHuman:`},
		},
	}
	require.NoError(t, repo.Create(ctx, policy))

	got, err := repo.GetModelPolicyByID(ctx, "tutor")
	require.NoError(t, err)
	assert.Equal(t, "claude-3-haiku", got.UpstreamModel())
	require.NotNil(t, got.Params.Temperature)
	assert.Equal(t, 0.2, *got.Params.Temperature)
	assert.Nil(t, got.Params.TopP)
	assert.Equal(t, 512, *got.Params.MaxTokens)
	assert.Equal(t, []string{`\n\nHuman:`}, got.Params.Stop)

	_, err = repo.GetModelPolicyByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModelRepository_NullParamsAndBase(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Conn().ExecContext(ctx, `INSERT INTO models (id, name) VALUES ('plain', 'Plain')`)
	require.NoError(t, err)

	got, err := db.NewModelRepository().GetModelPolicyByID(ctx, "plain")
	require.NoError(t, err)
	assert.Nil(t, got.BaseModelID)
	assert.Equal(t, models.ModelParams{}, got.Params)
	assert.Equal(t, "plain", got.UpstreamModel())
}

func TestModelRepository_CacheAndInvalidation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := db.NewModelRepository()

	require.NoError(t, repo.Create(ctx, &models.ModelPolicy{ID: "m", Name: "before"}))
	_, err := repo.GetModelPolicyByID(ctx, "m")
	require.NoError(t, err)

	// A write behind the repository's back is not seen until the entry expires
	_, err = db.Conn().ExecContext(ctx, `UPDATE models SET name = 'sneaky' WHERE id = 'm'`)
	require.NoError(t, err)
	got, err := repo.GetModelPolicyByID(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, "before", got.Name)

	require.NoError(t, repo.Update(ctx, &models.ModelPolicy{ID: "m", Name: "after"}))
	got, err = repo.GetModelPolicyByID(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, "after", got.Name)

	assert.ErrorIs(t, repo.Update(ctx, &models.ModelPolicy{ID: "absent"}), ErrModelNotFound)

	stats := db.GetStats().ModelCacheStats
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestModelRepository_CachesAbsentPolicies(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := db.NewModelRepository()

	_, err := repo.GetModelPolicyByID(ctx, "claude-3-haiku")
	assert.ErrorIs(t, err, ErrModelNotFound)
	_, err = repo.GetModelPolicyByID(ctx, "claude-3-haiku")
	assert.ErrorIs(t, err, ErrModelNotFound)

	stats := db.GetStats().ModelCacheStats
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)

	// Creating the policy replaces the absent marker
	require.NoError(t, repo.Create(ctx, &models.ModelPolicy{ID: "claude-3-haiku", Name: "Haiku"}))
	got, err := repo.GetModelPolicyByID(ctx, "claude-3-haiku")
	require.NoError(t, err)
	assert.Equal(t, "Haiku", got.Name)
}

func TestPromptRepository(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := db.NewPromptRepository()

	prompt := &models.Prompt{Content: "You are a patient tutor.", SelectedModelID: "tutor"}
	require.NoError(t, repo.CreatePrompt(ctx, prompt))
	assert.NotZero(t, prompt.ID)

	evaluation := &models.Evaluation{Content: "Grade the answer.", SelectedModelID: "grader"}
	require.NoError(t, repo.CreateEvaluation(ctx, evaluation))

	gotPrompt, err := repo.GetPromptByID(ctx, prompt.ID)
	require.NoError(t, err)
	assert.Equal(t, prompt, gotPrompt)

	gotEval, err := repo.GetEvaluationByID(ctx, evaluation.ID)
	require.NoError(t, err)
	assert.Equal(t, evaluation, gotEval)

	_, err = repo.GetPromptByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrPromptNotFound)
	_, err = repo.GetEvaluationByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrEvaluationNotFound)
}
