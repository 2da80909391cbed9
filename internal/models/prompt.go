package models

// Prompt is the subset of a stored prompt the proxy needs: the hidden
// system-prompt content and the model the author selected for it.
type Prompt struct {
	ID              int64  `db:"id" json:"id"`
	Content         string `db:"content" json:"content"`
	SelectedModelID string `db:"selected_model_id" json:"selected_model_id"`
}

// Evaluation is an instructor-authored evaluation prompt. Requests that
// reference one are not counted as student messages.
type Evaluation struct {
	ID              int64  `db:"id" json:"id"`
	Content         string `db:"content" json:"content"`
	SelectedModelID string `db:"selected_model_id" json:"selected_model_id"`
}
