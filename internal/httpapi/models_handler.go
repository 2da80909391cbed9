package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"claude_gateway/internal/catalog"
	"claude_gateway/internal/middleware"
	"claude_gateway/internal/models"
	"claude_gateway/internal/storage"
	"claude_gateway/internal/utils"
)

type modelList[T any] struct {
	Data []T `json:"data"`
}

// handleListModels serves the merged catalog. With the model filter on,
// non-admin callers only see allow-listed ids.
func (d *Dependencies) handleListModels(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetCaller(r.Context())
	snap := d.Catalog.EnsureFresh(r.Context())

	entries := snap.Entries
	if d.ModelFilter.Enabled && !caller.IsAdmin() {
		entries = make([]catalog.Entry, 0, len(snap.Entries))
		for _, e := range snap.Entries {
			if slices.Contains(d.ModelFilter.List, e.ID) {
				entries = append(entries, e)
			}
		}
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}

	utils.RespondWithJSON(w, http.StatusOK, modelList[catalog.Entry]{Data: entries})
}

// handleEndpointModels serves one endpoint's listing as returned upstream.
func (d *Dependencies) handleEndpointModels(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid endpoint index")
		return
	}

	list, err := d.Catalog.FetchEndpoint(r.Context(), idx)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrUnknownEndpoint):
			utils.RespondWithError(w, http.StatusNotFound, err.Error())
			return
		case errors.Is(err, catalog.ErrDisabled):
			utils.RespondWithError(w, http.StatusServiceUnavailable, "Claude API is disabled")
			return
		}
		d.respondUpstreamError(w, middleware.GetRequestID(r.Context()), err)
		return
	}
	if list == nil {
		list = []json.RawMessage{}
	}

	utils.RespondWithJSON(w, http.StatusOK, modelList[json.RawMessage]{Data: list})
}

func (d *Dependencies) handleListModelPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := d.ModelPolicies.List(r.Context())
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to list model policies")
		return
	}
	if policies == nil {
		policies = []*models.ModelPolicy{}
	}
	utils.RespondWithJSON(w, http.StatusOK, policies)
}

func (d *Dependencies) handleCreateModelPolicy(w http.ResponseWriter, r *http.Request) {
	var policy models.ModelPolicy
	if !utils.DecodeJSONBody(w, r, &policy) {
		return
	}
	if policy.ID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := d.ModelPolicies.Create(r.Context(), &policy); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to create model policy")
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, policy)
}

func (d *Dependencies) handleUpdateModelPolicy(w http.ResponseWriter, r *http.Request) {
	var policy models.ModelPolicy
	if !utils.DecodeJSONBody(w, r, &policy) {
		return
	}
	policy.ID = chi.URLParam(r, "id")

	if err := d.ModelPolicies.Update(r.Context(), &policy); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to update model policy")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, policy)
}
