package models

import "time"

// DateLayout is the day-bucket format used for usage metrics.
const DateLayout = "2006-01-02"

// UsageEvent is one observed token/message increment, extracted from either a
// buffered upstream response or a single streamed frame.
type UsageEvent struct {
	ChatID       string `json:"chat_id"`
	UserID       string `json:"user_id"`
	ModelID      string `json:"model_id"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	MessageCount int64  `json:"message_count"`
	Date         string `json:"date"`
}

// NewUsageEvent stamps an event with the day bucket of now.
func NewUsageEvent(userID, chatID, modelID string, now time.Time) *UsageEvent {
	return &UsageEvent{
		UserID:  userID,
		ChatID:  chatID,
		ModelID: modelID,
		Date:    now.Format(DateLayout),
	}
}

// TotalTokens is the amount added to the user's running token counter.
func (e *UsageEvent) TotalTokens() int64 {
	return e.InputTokens + e.OutputTokens
}

// IsEmpty reports whether applying the event would change nothing.
func (e *UsageEvent) IsEmpty() bool {
	return e.InputTokens == 0 && e.OutputTokens == 0 && e.MessageCount == 0
}
