package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"claude_gateway/internal/auth"
	"claude_gateway/internal/catalog"
	"claude_gateway/internal/config"
	"claude_gateway/internal/metering"
	"claude_gateway/internal/middleware"
	"claude_gateway/internal/models"
	"claude_gateway/internal/providers"
	"claude_gateway/internal/queue"
	"claude_gateway/internal/rewrite"
	"claude_gateway/internal/storage"
)

// MetricStore reads accrued usage buckets
type MetricStore interface {
	List(ctx context.Context) ([]*models.Metric, error)
	ByChats(ctx context.Context) (map[string]*models.ChatMetric, error)
	ByChatsForInstructor(ctx context.Context, instructorID string) (map[string]*models.ChatMetric, error)
	ByChatID(ctx context.Context, chatID string) (*models.ChatMetric, error)
}

// ModelPolicyAdmin manages server-side model policies
type ModelPolicyAdmin interface {
	List(ctx context.Context) ([]*models.ModelPolicy, error)
	Create(ctx context.Context, policy *models.ModelPolicy) error
	Update(ctx context.Context, policy *models.ModelPolicy) error
}

// UsageQueueAdmin exposes the usage worker's queue state
type UsageQueueAdmin interface {
	GetQueueLength(ctx context.Context) (int, error)
	GetDeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem[*models.UsageEvent], error)
	RetryDeadLetterItem(ctx context.Context, id string) error
	Stats() storage.WorkerStats
}

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	JWTSecret   []byte
	ModelFilter config.ModelFilterConfig

	Catalog    *catalog.Catalog
	Rewriter   *rewrite.Rewriter
	Dispatcher providers.Dispatcher
	Meter      *metering.Meter

	Metrics       MetricStore
	ModelPolicies ModelPolicyAdmin
	UsageQueue    UsageQueueAdmin

	// Health reports storage reachability; nil means always healthy
	Health func(ctx context.Context) error
}

// NewRouter creates the HTTP router for the gateway.
func NewRouter(deps *Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	// Health check endpoint - public
	r.Get("/health", deps.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(middleware.CallerMiddleware(deps.JWTSecret))

		admin := middleware.RequireRole(auth.RoleAdmin)
		staff := middleware.RequireRole(auth.RoleInstructor)

		// Endpoint configuration
		r.With(admin).Get("/config", deps.handleGetConfig)
		r.With(admin).Post("/config/update", deps.handleUpdateConfig)
		r.With(admin).Get("/urls", deps.handleGetURLs)
		r.With(admin).Post("/urls/update", deps.handleUpdateURLs)
		r.With(admin).Get("/keys", deps.handleGetKeys)
		r.With(admin).Post("/keys/update", deps.handleUpdateKeys)

		// Catalog
		r.Get("/models", deps.handleListModels)
		r.Get("/models/{idx}", deps.handleEndpointModels)

		// Usage reports
		r.With(admin).Get("/metrics/", deps.handleListMetrics)
		r.With(staff).Get("/metrics/chats", deps.handleMetricsByChats)
		r.With(staff).Get("/metrics/{chat_id}", deps.handleMetricsByChatID)

		// Model policies and the usage queue
		if deps.ModelPolicies != nil {
			r.With(admin).Get("/model-policies", deps.handleListModelPolicies)
			r.With(admin).Post("/model-policies", deps.handleCreateModelPolicy)
			r.With(admin).Put("/model-policies/{id}", deps.handleUpdateModelPolicy)
		}
		if deps.UsageQueue != nil {
			r.With(admin).Get("/usage/queue", deps.handleUsageQueue)
			r.With(admin).Post("/usage/dlq/{id}/retry", deps.handleRetryDeadLetter)
		}

		// Everything else is forwarded upstream
		proxy := http.HandlerFunc(deps.handleProxy)
		r.Get("/*", proxy)
		r.Post("/*", proxy)
		r.Put("/*", proxy)
		r.Delete("/*", proxy)
	})

	return r
}

func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	if d.Health != nil {
		if err := d.Health(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
