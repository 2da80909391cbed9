package models

// Metric is one usage bucket (metrics table), keyed by
// (user_id, chat_id, model_id, date). chat_id is not a foreign key so that
// metrics survive chat deletion.
type Metric struct {
	ID           int64  `db:"id" json:"id"`
	UserID       string `db:"user_id" json:"user_id"`
	ChatID       string `db:"chat_id" json:"chat_id"`
	ModelID      string `db:"model_id" json:"selected_model_id"`
	Date         string `db:"date" json:"date"`
	InputTokens  int64  `db:"input_tokens" json:"input_tokens"`
	OutputTokens int64  `db:"output_tokens" json:"output_tokens"`
	MessageCount int64  `db:"message_count" json:"message_count"`
}

// ChatMetric aggregates every bucket of a single chat.
type ChatMetric struct {
	ChatID       string `db:"chat_id" json:"chat_id"`
	InputTokens  int64  `db:"input_tokens" json:"input_tokens"`
	OutputTokens int64  `db:"output_tokens" json:"output_tokens"`
	MessageCount int64  `db:"message_count" json:"message_count"`
}
