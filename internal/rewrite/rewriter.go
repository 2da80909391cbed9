package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/bytedance/sonic"

	"claude_gateway/internal/auth"
	"claude_gateway/internal/catalog"
	"claude_gateway/internal/models"
	"claude_gateway/internal/utils"
)

var (
	// ErrBadRequest is returned for bodies that are not a JSON object or
	// carry mistyped fields.
	ErrBadRequest = errors.New("bad request")
	// ErrModelNotFound is returned when the final model id is not in the
	// catalog.
	ErrModelNotFound = errors.New("model not found")
)

// PromptStore resolves prompt references.
type PromptStore interface {
	GetPromptByID(ctx context.Context, id int64) (*models.Prompt, error)
}

// EvaluationStore resolves evaluation references.
type EvaluationStore interface {
	GetEvaluationByID(ctx context.Context, id int64) (*models.Evaluation, error)
}

// ModelPolicyStore returns server-side model definitions.
type ModelPolicyStore interface {
	GetModelPolicyByID(ctx context.Context, id string) (*models.ModelPolicy, error)
}

// ModelRouter maps a model id to the endpoint that serves it.
type ModelRouter interface {
	Lookup(id string) (catalog.Endpoint, catalog.Entry, bool)
}

// Rewriter applies prompt, evaluation and model policy to inbound requests.
type Rewriter struct {
	prompts     PromptStore
	evaluations EvaluationStore
	policies    ModelPolicyStore
	router      ModelRouter
	logger      *utils.Logger
}

// New creates a Rewriter.
func New(prompts PromptStore, evaluations EvaluationStore, policies ModelPolicyStore, router ModelRouter) *Rewriter {
	return &Rewriter{
		prompts:     prompts,
		evaluations: evaluations,
		policies:    policies,
		router:      router,
		logger:      utils.NewLogger("rewriter"),
	}
}

// Rewrite parses raw and resolves it into a request for a concrete
// endpoint. It performs no upstream I/O.
func (rw *Rewriter) Rewrite(ctx context.Context, raw []byte, caller auth.Caller) (*ResolvedRequest, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	req := &ResolvedRequest{UserID: caller.ID}
	if err := req.takeFields(fields); err != nil {
		return nil, err
	}
	req.Extra = fields

	var promptModel, evalModel string

	if req.PromptID != "" {
		if prompt := rw.lookupPrompt(ctx, req.PromptID); prompt != nil {
			req.System = jsonString(prompt.Content)
			promptModel = prompt.SelectedModelID
		}
	}

	if req.EvaluationID != "" {
		req.IsEvaluation = true
		if eval := rw.lookupEvaluation(ctx, req.EvaluationID); eval != nil {
			req.System = jsonString(eval.Content)
			if eval.SelectedModelID != "" {
				req.Model = eval.SelectedModelID
				evalModel = eval.SelectedModelID
			}
		}
	}

	policyID := firstNonEmpty(evalModel, promptModel, req.Model)
	policy := rw.lookupPolicy(ctx, policyID)
	if policy != nil && policy.BaseModelID != nil && *policy.BaseModelID != "" {
		req.Model = *policy.BaseModelID
	}

	ep, _, ok := rw.router.Lookup(req.Model)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModelNotFound, req.Model)
	}
	req.Endpoint = ep

	if policy != nil {
		req.applyDefaults(policy.Params)
	}
	if req.MaxTokens == nil {
		n := DefaultMaxTokens
		req.MaxTokens = &n
	}

	rw.logger.Debug("Request rewritten", "user", req.UserID, "chat", req.ChatID,
		"requested_model", req.RequestedModel, "model", req.Model, "endpoint", ep.Index, "eval", req.IsEvaluation)
	return req, nil
}

// applyDefaults fills fields the caller left unset from truthy policy values.
func (r *ResolvedRequest) applyDefaults(p models.ModelParams) {
	if r.Temperature == nil && p.Temperature != nil && *p.Temperature != 0 {
		v := *p.Temperature
		r.Temperature = &v
	}
	if r.TopP == nil && p.TopP != nil && *p.TopP != 0 {
		v := *p.TopP
		r.TopP = &v
	}
	if r.MaxTokens == nil && p.MaxTokens != nil && *p.MaxTokens != 0 {
		v := *p.MaxTokens
		r.MaxTokens = &v
	}
	if r.StopSequences == nil && len(p.Stop) > 0 {
		stops := make([]string, len(p.Stop))
		for i, s := range p.Stop {
			stops[i] = DecodeEscapes(s)
		}
		r.StopSequences = stops
	}
}

func (rw *Rewriter) lookupPrompt(ctx context.Context, ref string) *models.Prompt {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		rw.logger.Warn("Prompt reference is not an id, ignoring", "profile_id", ref)
		return nil
	}
	prompt, err := rw.prompts.GetPromptByID(ctx, id)
	if err != nil || prompt == nil {
		rw.logger.Warn("Prompt not resolved, forwarding without system prompt", "profile_id", id, "error", err)
		return nil
	}
	return prompt
}

func (rw *Rewriter) lookupEvaluation(ctx context.Context, ref string) *models.Evaluation {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		rw.logger.Warn("Evaluation reference is not an id, ignoring", "evaluation_id", ref)
		return nil
	}
	eval, err := rw.evaluations.GetEvaluationByID(ctx, id)
	if err != nil || eval == nil {
		rw.logger.Warn("Evaluation not resolved, forwarding without system prompt", "evaluation_id", id, "error", err)
		return nil
	}
	return eval
}

func (rw *Rewriter) lookupPolicy(ctx context.Context, id string) *models.ModelPolicy {
	if id == "" || rw.policies == nil {
		return nil
	}
	policy, err := rw.policies.GetModelPolicyByID(ctx, id)
	if err != nil {
		rw.logger.Debug("No model policy", "model", id, "error", err)
		return nil
	}
	return policy
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrBadRequest)
	}
	var fields map[string]json.RawMessage
	if err := sonic.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return fields, nil
}

// takeFields moves recognised fields out of fields and into r.
func (r *ResolvedRequest) takeFields(fields map[string]json.RawMessage) error {
	take := func(key string) json.RawMessage {
		v, ok := fields[key]
		if !ok {
			return nil
		}
		delete(fields, key)
		if isNull(v) {
			return nil
		}
		return v
	}

	if v := take("model"); v != nil {
		if err := sonic.Unmarshal(v, &r.Model); err != nil {
			return fmt.Errorf("%w: model must be a string", ErrBadRequest)
		}
	}
	r.RequestedModel = r.Model

	var err error
	if r.ChatID, err = refText(take("chat_id")); err != nil {
		return fmt.Errorf("%w: chat_id: %v", ErrBadRequest, err)
	}

	profile := take("profile_id")
	alias := take("prompt")
	if profile == nil {
		profile = alias
	}
	if r.PromptID, err = refText(profile); err != nil {
		return fmt.Errorf("%w: profile_id: %v", ErrBadRequest, err)
	}
	if r.EvaluationID, err = refText(take("evaluation_id")); err != nil {
		return fmt.Errorf("%w: evaluation_id: %v", ErrBadRequest, err)
	}

	if v := take("system"); v != nil {
		r.System = append(json.RawMessage(nil), v...)
	}
	if v := take("temperature"); v != nil {
		var f float64
		if err := sonic.Unmarshal(v, &f); err != nil {
			return fmt.Errorf("%w: temperature must be a number", ErrBadRequest)
		}
		r.Temperature = &f
	}
	if v := take("top_p"); v != nil {
		var f float64
		if err := sonic.Unmarshal(v, &f); err != nil {
			return fmt.Errorf("%w: top_p must be a number", ErrBadRequest)
		}
		r.TopP = &f
	}
	if v := take("max_tokens"); v != nil {
		var f float64
		if err := sonic.Unmarshal(v, &f); err != nil || f != math.Trunc(f) {
			return fmt.Errorf("%w: max_tokens must be an integer", ErrBadRequest)
		}
		if f < 0 || f > math.MaxInt32 {
			return fmt.Errorf("%w: max_tokens out of range", ErrBadRequest)
		}
		n := int(f)
		r.MaxTokens = &n
	}
	if v := take("stop_sequences"); v != nil {
		if err := sonic.Unmarshal(v, &r.StopSequences); err != nil {
			return fmt.Errorf("%w: stop_sequences must be a list of strings", ErrBadRequest)
		}
	}
	// OpenAI-style stop is accepted as a string or a list and sent as
	// stop_sequences. An explicit stop_sequences wins.
	if v := take("stop"); v != nil && r.StopSequences == nil {
		var one string
		if err := sonic.Unmarshal(v, &one); err == nil {
			r.StopSequences = []string{one}
		} else if err := sonic.Unmarshal(v, &r.StopSequences); err != nil {
			return fmt.Errorf("%w: stop must be a string or a list of strings", ErrBadRequest)
		}
	}
	if v := take("stream"); v != nil {
		if err := sonic.Unmarshal(v, &r.Stream); err != nil {
			return fmt.Errorf("%w: stream must be a boolean", ErrBadRequest)
		}
	}
	return nil
}

// refText renders a string or numeric reference id as text.
func refText(v json.RawMessage) (string, error) {
	if v == nil {
		return "", nil
	}
	var s string
	if err := sonic.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", fmt.Errorf("expected string or number")
	}
	return n.String(), nil
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}

func jsonString(s string) json.RawMessage {
	b, _ := sonic.ConfigStd.Marshal(s)
	return b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
