package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claude_gateway/internal/auth"
)

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestProxyRequiresCaller(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/chat/completions", `{"model":"claude-3-haiku"}`, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProxyStreamingMetersUsage(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/chat/completions",
		`{"model":"claude-3-haiku","chat_id":"c1","stream":true,"messages":[{"role":"user","content":"hi"}]}`,
		"u1", auth.RoleUser)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, upstreamStream, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
	assert.Equal(t, "yes", w.Header().Get("X-Upstream"))

	bodies, headers, _ := env.upstream.received()
	require.Len(t, bodies, 1)
	assert.NotContains(t, bodies[0], "chat_id")
	assert.Equal(t, float64(1024), bodies[0]["max_tokens"])
	assert.Equal(t, "sk-test", headers[0].Get("x-api-key"))
	assert.Equal(t, "2023-06-01", headers[0].Get("anthropic-version"))

	events := env.publisher.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, int64(170), events[0].TotalTokens()+events[1].TotalTokens())
	for _, ev := range events {
		assert.Equal(t, "u1", ev.UserID)
		assert.Equal(t, "c1", ev.ChatID)
		assert.Equal(t, "claude-3-haiku", ev.ModelID)
	}
	assert.Equal(t, int64(1), events[0].MessageCount)
}

func TestProxyBufferedResponse(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/chat/completions",
		`{"model":"tutor","profile_id":7,"chat_id":"c9","messages":[]}`, "u2", auth.RoleUser)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, bufferedReply, w.Body.String())

	bodies, _, _ := env.upstream.received()
	require.Len(t, bodies, 1)
	assert.Equal(t, "claude-3-haiku", bodies[0]["model"])
	assert.Equal(t, "You are a tutor.", bodies[0]["system"])
	assert.NotContains(t, bodies[0], "profile_id")

	events := env.publisher.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, int64(11), events[0].InputTokens)
	assert.Equal(t, int64(22), events[0].OutputTokens)
	assert.Equal(t, "c9", events[0].ChatID)
}

func TestProxyRejectsBeforeDispatch(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantDetail string
	}{
		{name: "unknown model", body: `{"model":"gpt-4"}`, wantStatus: http.StatusNotFound, wantDetail: "Model not found"},
		{name: "malformed json", body: `{"model":`, wantStatus: http.StatusBadRequest},
		{name: "not an object", body: `[1,2]`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(t, http.MethodPost, "/chat/completions", tt.body, "u1", auth.RoleUser)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, decodeDetail(t, w))
			}
			bodies, _, _ := env.upstream.received()
			assert.Empty(t, bodies)
			assert.Empty(t, env.publisher.snapshot())
		})
	}
}

func TestProxyRelaysVendorError(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/chat/completions", `{"model":"claude-3-opus"}`, "u1", auth.RoleUser)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "External: slow down", decodeDetail(t, w))
	assert.Empty(t, env.publisher.snapshot())
}

func TestProxyConnectionError(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/models", "", "admin", auth.RoleAdmin) // build the catalog first
	env.upstream.Close()

	w := env.do(t, http.MethodPost, "/chat/completions", `{"model":"claude-3-haiku"}`, "u1", auth.RoleUser)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Server Connection Error", decodeDetail(t, w))
}

func TestProxyDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Catalog.Endpoints().SetEnabled(false)

	w := env.do(t, http.MethodPost, "/chat/completions", `{"model":"claude-3-haiku"}`, "u1", auth.RoleUser)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	bodies, _, _ := env.upstream.received()
	assert.Empty(t, bodies)
}

func TestProxyOtherPathsForwardedUnmetered(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/messages/batches", `{"model":"anything","chat_id":"kept"}`, "u1", auth.RoleUser)

	require.Equal(t, http.StatusOK, w.Code)
	bodies, _, methods := env.upstream.received()
	require.Len(t, bodies, 1)
	assert.Equal(t, "kept", bodies[0]["chat_id"])
	assert.Equal(t, http.MethodPut, methods[0])
	assert.Empty(t, env.publisher.snapshot())
}

func TestProxyClientDisconnectClosesUpstream(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/chat/completions",
		strings.NewReader(`{"model":"claude-3-haiku","chat_id":"c1","stream":true,"hold_open":true}`)).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "u1", auth.RoleUser))

	served := make(chan struct{})
	go func() {
		env.handler.ServeHTTP(httptest.NewRecorder(), req)
		close(served)
	}()

	require.Eventually(t, func() bool { return len(env.publisher.snapshot()) == 1 },
		2*time.Second, 5*time.Millisecond, "input usage should be metered before the client leaves")

	cancel()

	select {
	case <-env.upstream.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream connection still open after client disconnect")
	}
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("proxy handler did not return after client disconnect")
	}

	events := env.publisher.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, int64(50), events[0].InputTokens)
	assert.Equal(t, "c1", events[0].ChatID)
}
