package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"claude_gateway/internal/auth"
	"claude_gateway/internal/middleware"
	"claude_gateway/internal/models"
	"claude_gateway/internal/queue"
	"claude_gateway/internal/storage"
	"claude_gateway/internal/utils"
)

const defaultDeadLetterLimit = 100

func (d *Dependencies) handleListMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := d.Metrics.List(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to list metrics")
		return
	}
	if metrics == nil {
		metrics = []*models.Metric{}
	}
	utils.RespondWithJSON(w, http.StatusOK, metrics)
}

// handleMetricsByChats aggregates per chat. Instructors only see chats of
// their own classes and their own unassigned chats.
func (d *Dependencies) handleMetricsByChats(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCaller(r.Context())

	var (
		byChat map[string]*models.ChatMetric
		err    error
	)
	if caller.Role == auth.RoleAdmin {
		byChat, err = d.Metrics.ByChats(r.Context())
	} else {
		byChat, err = d.Metrics.ByChatsForInstructor(r.Context(), caller.ID)
	}
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to aggregate metrics")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, byChat)
}

// handleMetricsByChatID returns one chat's aggregate, or null when the chat
// has no usage.
func (d *Dependencies) handleMetricsByChatID(w http.ResponseWriter, r *http.Request) {
	metric, err := d.Metrics.ByChatID(r.Context(), chi.URLParam(r, "chat_id"))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to aggregate metrics")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, metric)
}

type usageQueueStatus struct {
	Length      int                                        `json:"length"`
	Stats       storage.WorkerStats                        `json:"stats"`
	DeadLetters []queue.DeadLetterItem[*models.UsageEvent] `json:"dead_letters"`
}

func (d *Dependencies) handleUsageQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultDeadLetterLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			limit = n
		}
	}

	length, err := d.UsageQueue.GetQueueLength(ctx)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to read queue length")
		return
	}
	items, err := d.UsageQueue.GetDeadLetterItems(ctx, limit)
	if err != nil && !errors.Is(err, queue.ErrNoDeadLetterQueue) {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to list dead letter items")
		return
	}
	if items == nil {
		items = []queue.DeadLetterItem[*models.UsageEvent]{}
	}

	utils.RespondWithJSON(w, http.StatusOK, usageQueueStatus{
		Length:      length,
		Stats:       d.UsageQueue.Stats(),
		DeadLetters: items,
	})
}

func (d *Dependencies) handleRetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	if err := d.UsageQueue.RetryDeadLetterItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, queue.ErrItemNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "dead letter item not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
