package httpapi

import (
	"net/http"

	"claude_gateway/internal/utils"
)

type configForm struct {
	EnableClaudeAPI *bool `json:"enable_claude_api"`
}

type urlsForm struct {
	URLs []string `json:"urls"`
}

type keysForm struct {
	Keys []string `json:"keys"`
}

func (d *Dependencies) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string]bool{
		"ENABLE_CLAUDE_API": d.Catalog.Endpoints().Enabled(),
	})
}

// handleUpdateConfig toggles the proxy. An absent flag disables it.
func (d *Dependencies) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var form configForm
	if !utils.DecodeJSONBody(w, r, &form) {
		return
	}

	endpoints := d.Catalog.Endpoints()
	endpoints.SetEnabled(form.EnableClaudeAPI != nil && *form.EnableClaudeAPI)
	d.Catalog.Refresh(r.Context())

	utils.RespondWithJSON(w, http.StatusOK, map[string]bool{
		"ENABLE_CLAUDE_API": endpoints.Enabled(),
	})
}

func (d *Dependencies) handleGetURLs(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string][]string{
		"CLAUDE_API_BASE_URLS": d.Catalog.Endpoints().URLs(),
	})
}

// handleUpdateURLs replaces the endpoint list, then reconciles keys against
// it and rebuilds the catalog.
func (d *Dependencies) handleUpdateURLs(w http.ResponseWriter, r *http.Request) {
	var form urlsForm
	if !utils.DecodeJSONBody(w, r, &form) {
		return
	}

	endpoints := d.Catalog.Endpoints()
	endpoints.SetURLs(form.URLs)
	endpoints.Reconcile()
	d.Catalog.Refresh(r.Context())

	utils.RespondWithJSON(w, http.StatusOK, map[string][]string{
		"CLAUDE_API_BASE_URLS": endpoints.URLs(),
	})
}

func (d *Dependencies) handleGetKeys(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string][]string{
		"CLAUDE_API_KEYS": d.Catalog.Endpoints().Keys(),
	})
}

// handleUpdateKeys replaces the key list, then reconciles it against the
// endpoints and rebuilds the catalog.
func (d *Dependencies) handleUpdateKeys(w http.ResponseWriter, r *http.Request) {
	var form keysForm
	if !utils.DecodeJSONBody(w, r, &form) {
		return
	}

	endpoints := d.Catalog.Endpoints()
	endpoints.SetKeys(form.Keys)
	endpoints.Reconcile()
	d.Catalog.Refresh(r.Context())

	utils.RespondWithJSON(w, http.StatusOK, map[string][]string{
		"CLAUDE_API_KEYS": endpoints.Keys(),
	})
}
