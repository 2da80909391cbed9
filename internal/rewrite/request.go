package rewrite

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"

	"claude_gateway/internal/catalog"
)

// DefaultMaxTokens is sent when neither the caller nor the model policy sets
// max_tokens; the upstream rejects requests without it.
const DefaultMaxTokens = 1024

// ResolvedRequest is an inbound chat completion after policy has been
// applied, ready to be sent to Endpoint.
type ResolvedRequest struct {
	// RequestedModel is the model named by the caller.
	RequestedModel string
	// Model is the upstream model id sent on the wire and used for metering.
	Model    string
	Endpoint catalog.Endpoint

	UserID       string
	ChatID       string
	PromptID     string
	EvaluationID string
	IsEvaluation bool

	System        json.RawMessage
	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
	StopSequences []string
	Stream        bool

	// Extra holds every other top-level field, forwarded untouched.
	Extra map[string]json.RawMessage
}

// MarshalJSON renders the vendor request body. Gateway-only fields such as
// chat_id and the prompt references are never emitted.
func (r *ResolvedRequest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+8)
	for k, v := range r.Extra {
		out[k] = v
	}

	out["model"] = r.Model
	if len(r.System) > 0 {
		out["system"] = r.System
	}
	if r.Temperature != nil {
		out["temperature"] = *r.Temperature
	}
	if r.TopP != nil {
		out["top_p"] = *r.TopP
	}
	if r.MaxTokens != nil {
		out["max_tokens"] = *r.MaxTokens
	}
	if len(r.StopSequences) > 0 {
		out["stop_sequences"] = r.StopSequences
	}
	if r.Stream {
		out["stream"] = true
	}

	b, err := sonic.ConfigStd.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}
	return b, nil
}
