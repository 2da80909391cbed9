package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchSetsVendorHeaders(t *testing.T) {
	var gotPath, gotKey, gotVersion, gotMethod, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"usage":{"input_tokens":3,"output_tokens":4}}`))
	}))
	defer server.Close()

	client := NewClaudeClientWithHTTP(server.Client())
	resp, err := client.Dispatch(context.Background(), Target{BaseURL: server.URL + "/v1", APIKey: "sk-test"},
		Request{Method: http.MethodPost, Body: []byte(`{"model":"claude-x"}`)})
	require.NoError(t, err)

	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "sk-test", gotKey)
	assert.Equal(t, AnthropicVersion, gotVersion)
	assert.Equal(t, `{"model":"claude-x"}`, gotBody)

	assert.False(t, resp.IsStream())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"usage":{"input_tokens":3,"output_tokens":4}}`, string(resp.Body))
}

func TestDispatchReturnsLiveStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		_, _ = w.Write([]byte("event: ping\ndata: {}\n\n"))
	}))
	defer server.Close()

	client := NewClaudeClientWithHTTP(server.Client())
	resp, err := client.Dispatch(context.Background(), Target{BaseURL: server.URL}, Request{Method: http.MethodPost})
	require.NoError(t, err)
	defer resp.Close()

	require.True(t, resp.IsStream())
	assert.Nil(t, resp.Body)
	b, err := io.ReadAll(resp.Stream)
	require.NoError(t, err)
	assert.Equal(t, "event: ping\ndata: {}\n\n", string(b))
}

func TestDispatchVendorError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "structured error", status: http.StatusTooManyRequests, body: `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`, message: "slow down"},
		{name: "string error", status: http.StatusBadRequest, body: `{"error":"bad model"}`, message: "bad model"},
		{name: "non json body", status: http.StatusBadGateway, body: `upstream down`, message: "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClaudeClientWithHTTP(server.Client())
			_, err := client.Dispatch(context.Background(), Target{BaseURL: server.URL}, Request{Method: http.MethodPost})

			var vendorErr *VendorError
			require.True(t, errors.As(err, &vendorErr), "expected VendorError, got %v", err)
			assert.Equal(t, tt.status, vendorErr.StatusCode)
			assert.Equal(t, tt.message, vendorErr.Message)
			assert.Equal(t, "External: "+tt.message, vendorErr.Detail())
		})
	}
}

func TestDispatchConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClaudeClient(0)
	_, err := client.Dispatch(context.Background(), Target{BaseURL: url}, Request{Method: http.MethodPost})

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr), "expected ConnectionError, got %v", err)
}

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("x-api-key"))
		assert.Equal(t, AnthropicVersion, r.Header.Get("anthropic-version"))
		_, _ = w.Write([]byte(`{"data":[{"id":"claude-a"}]}`))
	}))
	defer server.Close()

	client := NewClaudeClientWithHTTP(server.Client())
	body, err := client.ListModels(context.Background(), Target{BaseURL: server.URL, APIKey: "key-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"id":"claude-a"}]}`, string(body))
}
