package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"claude_gateway/internal/auth"
	"claude_gateway/internal/catalog"
	"claude_gateway/internal/config"
	"claude_gateway/internal/metering"
	"claude_gateway/internal/models"
	"claude_gateway/internal/providers"
	"claude_gateway/internal/queue"
	"claude_gateway/internal/rewrite"
	"claude_gateway/internal/storage"
)

var testSecret = []byte("test-secret")

const upstreamStream = "event: message_start\n" +
	`data: {"type":"message_start","message":{"id":"msg_1","usage":{"input_tokens":50,"output_tokens":1}}}` + "\n\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}` + "\n\n" +
	"event: message_delta\n" +
	`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":120}}` + "\n\n"

const bufferedReply = `{"id":"msg_2","type":"message","content":[{"type":"text","text":"Hi"}],"usage":{"input_tokens":11,"output_tokens":22}}`

// fakeUpstream is a Claude-compatible server that records what it receives
type fakeUpstream struct {
	*httptest.Server

	mu       sync.Mutex
	messages []map[string]any
	headers  []http.Header
	methods  []string

	// disconnected is closed when a held stream sees its client go away
	disconnected chan struct{}
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	up := &fakeUpstream{disconnected: make(chan struct{})}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":[{"id":"claude-3-haiku","type":"model","display_name":"Haiku"},{"id":"claude-3-opus","type":"model"}]}`)
	})
	mux.HandleFunc("/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		up.mu.Lock()
		up.messages = append(up.messages, body)
		up.headers = append(up.headers, r.Header.Clone())
		up.methods = append(up.methods, r.Method)
		up.mu.Unlock()

		if body["model"] == "claude-3-opus" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
			return
		}
		if body["hold_open"] == true {
			// Send the opening frame, then keep the stream open until the
			// proxy hangs up.
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, upstreamStream[:strings.Index(upstreamStream, "event: content_block_delta")])
			w.(http.Flusher).Flush()
			<-r.Context().Done()
			close(up.disconnected)
			return
		}
		if body["stream"] == true {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("X-Upstream", "yes")
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, upstreamStream)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, bufferedReply)
	})

	up.Server = httptest.NewServer(mux)
	t.Cleanup(up.Close)
	return up
}

func (u *fakeUpstream) baseURL() string { return u.URL + "/v1" }

func (u *fakeUpstream) received() ([]map[string]any, []http.Header, []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.messages, u.headers, u.methods
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.UsageEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event *models.UsageEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) snapshot() []*models.UsageEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.UsageEvent(nil), p.events...)
}

type fakeStores struct {
	prompts     map[int64]*models.Prompt
	evaluations map[int64]*models.Evaluation
	policies    map[string]*models.ModelPolicy
}

func (s *fakeStores) GetPromptByID(ctx context.Context, id int64) (*models.Prompt, error) {
	if p, ok := s.prompts[id]; ok {
		return p, nil
	}
	return nil, storage.ErrPromptNotFound
}

func (s *fakeStores) GetEvaluationByID(ctx context.Context, id int64) (*models.Evaluation, error) {
	if e, ok := s.evaluations[id]; ok {
		return e, nil
	}
	return nil, storage.ErrEvaluationNotFound
}

func (s *fakeStores) GetModelPolicyByID(ctx context.Context, id string) (*models.ModelPolicy, error) {
	if p, ok := s.policies[id]; ok {
		return p, nil
	}
	return nil, storage.ErrModelNotFound
}

type fakeMetrics struct {
	metrics       []*models.Metric
	chats         map[string]*models.ChatMetric
	instructorArg string
}

func (f *fakeMetrics) List(ctx context.Context) ([]*models.Metric, error) {
	return f.metrics, nil
}

func (f *fakeMetrics) ByChats(ctx context.Context) (map[string]*models.ChatMetric, error) {
	return f.chats, nil
}

func (f *fakeMetrics) ByChatsForInstructor(ctx context.Context, instructorID string) (map[string]*models.ChatMetric, error) {
	f.instructorArg = instructorID
	return map[string]*models.ChatMetric{}, nil
}

func (f *fakeMetrics) ByChatID(ctx context.Context, chatID string) (*models.ChatMetric, error) {
	if m, ok := f.chats[chatID]; ok {
		return m, nil
	}
	return nil, storage.ErrMetricNotFound
}

type fakeUsageQueue struct {
	length  int
	items   []queue.DeadLetterItem[*models.UsageEvent]
	retried []string
}

func (f *fakeUsageQueue) GetQueueLength(ctx context.Context) (int, error) { return f.length, nil }

func (f *fakeUsageQueue) GetDeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem[*models.UsageEvent], error) {
	return f.items, nil
}

func (f *fakeUsageQueue) RetryDeadLetterItem(ctx context.Context, id string) error {
	for _, item := range f.items {
		if item.ID == id {
			f.retried = append(f.retried, id)
			return nil
		}
	}
	return queue.ErrItemNotFound
}

func (f *fakeUsageQueue) Stats() storage.WorkerStats { return storage.WorkerStats{Applied: 3} }

type fakePolicyAdmin struct {
	policies map[string]*models.ModelPolicy
}

func (f *fakePolicyAdmin) List(ctx context.Context) ([]*models.ModelPolicy, error) {
	out := make([]*models.ModelPolicy, 0, len(f.policies))
	for _, p := range f.policies {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePolicyAdmin) Create(ctx context.Context, policy *models.ModelPolicy) error {
	f.policies[policy.ID] = policy
	return nil
}

func (f *fakePolicyAdmin) Update(ctx context.Context, policy *models.ModelPolicy) error {
	if _, ok := f.policies[policy.ID]; !ok {
		return storage.ErrModelNotFound
	}
	f.policies[policy.ID] = policy
	return nil
}

type testEnv struct {
	handler   http.Handler
	upstream  *fakeUpstream
	publisher *recordingPublisher
	deps      *Dependencies
	metrics   *fakeMetrics
	queue     *fakeUsageQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	up := newFakeUpstream(t)
	dispatcher := providers.NewClaudeClientWithHTTP(up.Client())
	cat := catalog.New(catalog.NewEndpointSet(true, []string{up.baseURL()}, []string{"sk-test"}), dispatcher, time.Second)

	stores := &fakeStores{
		prompts: map[int64]*models.Prompt{
			7: {ID: 7, Content: "You are a tutor.", SelectedModelID: "tutor"},
		},
		evaluations: map[int64]*models.Evaluation{},
		policies: map[string]*models.ModelPolicy{
			"tutor": {ID: "tutor", BaseModelID: ptr("claude-3-haiku")},
		},
	}
	pub := &recordingPublisher{}
	metrics := &fakeMetrics{chats: map[string]*models.ChatMetric{
		"c1": {ChatID: "c1", InputTokens: 1, OutputTokens: 2, MessageCount: 1},
	}}
	usageQueue := &fakeUsageQueue{length: 4, items: []queue.DeadLetterItem[*models.UsageEvent]{{ID: "dl-1"}}}

	deps := &Dependencies{
		JWTSecret:     testSecret,
		ModelFilter:   config.ModelFilterConfig{Enabled: true, List: []string{"claude-3-haiku"}},
		Catalog:       cat,
		Rewriter:      rewrite.New(stores, stores, stores, cat),
		Dispatcher:    dispatcher,
		Meter:         metering.NewMeter(pub),
		Metrics:       metrics,
		ModelPolicies: &fakePolicyAdmin{policies: map[string]*models.ModelPolicy{}},
		UsageQueue:    usageQueue,
	}

	return &testEnv{
		handler:   NewRouter(deps),
		upstream:  up,
		publisher: pub,
		deps:      deps,
		metrics:   metrics,
		queue:     usageQueue,
	}
}

func ptr[T any](v T) *T { return &v }

func tokenFor(t *testing.T, id string, role auth.Role) string {
	t.Helper()
	token, _, err := auth.GenerateJWT(auth.Caller{ID: id, Name: id, Role: role}, time.Hour, testSecret)
	require.NoError(t, err)
	return token
}

// do issues a request as the given caller. An empty id sends no token.
func (e *testEnv) do(t *testing.T, method, path, body, id string, role auth.Role) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if id != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, id, role))
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeDetail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Detail
}
