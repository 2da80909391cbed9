package providers

import (
	"context"
	"fmt"
	"net/http"
)

// AnthropicVersion is sent with every upstream call.
const AnthropicVersion = "2023-06-01"

// APIKeyAuth implements Anthropic-style API key authentication.
type APIKeyAuth struct {
	apiKey  string
	version string
}

// NewAPIKeyAuth creates an authenticator for the x-api-key header. Empty
// keys are allowed: self-hosted gateways often run without one.
func NewAPIKeyAuth(apiKey string) *APIKeyAuth {
	return &APIKeyAuth{apiKey: apiKey, version: AnthropicVersion}
}

// Authenticate returns an auth context with the API key
func (a *APIKeyAuth) Authenticate(ctx context.Context) (AuthContext, error) {
	return &APIKeyAuthContext{apiKey: a.apiKey, version: a.version}, nil
}

// APIKeyAuthContext holds the auth context for API key authentication
type APIKeyAuthContext struct {
	apiKey  string
	version string
}

// ApplyToRequest adds the API key and version headers to the HTTP request
func (c *APIKeyAuthContext) ApplyToRequest(ctx context.Context, req any) error {
	httpReq, ok := req.(*http.Request)
	if !ok {
		return fmt.Errorf("expected *http.Request, got %T", req)
	}

	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", c.version)
	return nil
}
