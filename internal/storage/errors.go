package storage

import "errors"

var (
	// ErrNotFound is wrapped by every lookup miss below
	ErrNotFound = errors.New("not found")

	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = wrapNotFound("user")

	// ErrPromptNotFound is returned when a prompt is not found
	ErrPromptNotFound = wrapNotFound("prompt")

	// ErrEvaluationNotFound is returned when an evaluation is not found
	ErrEvaluationNotFound = wrapNotFound("evaluation")

	// ErrModelNotFound is returned when a model policy is not found
	ErrModelNotFound = wrapNotFound("model")

	// ErrMetricNotFound is returned when a chat has no usage buckets
	ErrMetricNotFound = wrapNotFound("metric")
)

type notFoundError struct {
	what string
}

func (e *notFoundError) Error() string { return e.what + " not found" }

func (e *notFoundError) Unwrap() error { return ErrNotFound }

func wrapNotFound(what string) error {
	return &notFoundError{what: what}
}
