package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"claude_gateway/internal/utils"
)

// ClaudeClient is the Dispatcher for Claude-compatible endpoints.
type ClaudeClient struct {
	client *http.Client
	logger *utils.Logger
}

// NewClaudeClient creates a client. A zero timeout leaves completion calls
// bounded only by the request context, which streaming responses need.
func NewClaudeClient(timeout time.Duration) *ClaudeClient {
	return NewClaudeClientWithHTTP(&http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	})
}

// NewClaudeClientWithHTTP wraps an existing HTTP client.
func NewClaudeClientWithHTTP(client *http.Client) *ClaudeClient {
	return &ClaudeClient{
		client: client,
		logger: utils.NewLogger("claude-client"),
	}
}

func (c *ClaudeClient) newRequest(ctx context.Context, method, url string, body []byte, apiKey string) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	authCtx, err := NewAPIKeyAuth(apiKey).Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if err := authCtx.ApplyToRequest(ctx, httpReq); err != nil {
		return nil, fmt.Errorf("failed to apply auth: %w", err)
	}
	return httpReq, nil
}

// Dispatch issues one attempt against {target}/messages using req.Method.
func (c *ClaudeClient) Dispatch(ctx context.Context, target Target, req Request) (*UpstreamResponse, error) {
	start := time.Now()

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := c.newRequest(ctx, method, target.BaseURL+"/messages", req.Body, target.APIKey)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	latency := time.Since(start)

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		vendorErr := &VendorError{StatusCode: resp.StatusCode, Message: vendorErrorMessage(body)}
		c.logger.Warn("Upstream returned error", "status", resp.StatusCode, "url", target.BaseURL, "error", vendorErr.Message)
		return nil, vendorErr
	}

	if isEventStream(resp.Header) {
		return &UpstreamResponse{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Stream:     resp.Body,
			Latency:    latency,
		}, nil
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return &UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Latency:    latency,
	}, nil
}

// ListModels fetches the upstream model listing.
func (c *ClaudeClient) ListModels(ctx context.Context, target Target) ([]byte, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, target.BaseURL+"/models", nil, target.APIKey)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	httpReq.Header.Del("Content-Type")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &VendorError{StatusCode: resp.StatusCode, Message: vendorErrorMessage(body)}
	}
	return body, nil
}

// Close releases idle connections.
func (c *ClaudeClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
