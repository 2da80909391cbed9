package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
	}{
		{name: "bad request", code: http.StatusBadRequest, message: "invalid JSON body"},
		{name: "model not found", code: http.StatusNotFound, message: "Model not found"},
		{name: "vendor error", code: http.StatusTooManyRequests, message: "External: rate limited"},
		{name: "connection error", code: http.StatusInternalServerError, message: "Server Connection Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			RespondWithError(w, tt.code, tt.message)

			if w.Code != tt.code {
				t.Errorf("RespondWithError() status = %d, want %d", w.Code, tt.code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("RespondWithError() Content-Type = %s, want application/json", ct)
			}

			var response ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if response.Detail != tt.message {
				t.Errorf("RespondWithError() detail = %s, want %s", response.Detail, tt.message)
			}
		})
	}
}

func TestRespondWithJSON(t *testing.T) {
	t.Run("map payload", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := RespondWithJSON(w, http.StatusOK, map[string]any{"ENABLE_CLAUDE_API": true})
		if err != nil {
			t.Errorf("RespondWithJSON() error = %v, want nil", err)
		}

		var response map[string]any
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if response["ENABLE_CLAUDE_API"] != true {
			t.Errorf("RespondWithJSON() ENABLE_CLAUDE_API = %v, want true", response["ENABLE_CLAUDE_API"])
		}
	})

	t.Run("nil payload", func(t *testing.T) {
		w := httptest.NewRecorder()

		if err := RespondWithJSON(w, http.StatusOK, nil); err != nil {
			t.Errorf("RespondWithJSON() error = %v, want nil", err)
		}
		if body := w.Body.String(); body != "null\n" {
			t.Errorf("RespondWithJSON() nil payload body = %q", body)
		}
	})
}

func TestDecodeJSONBody(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/urls/update", strings.NewReader(`{"urls":["https://a"]}`))

		var form struct {
			URLs []string `json:"urls"`
		}
		if !DecodeJSONBody(w, r, &form) {
			t.Fatalf("DecodeJSONBody() = false, want true")
		}
		if len(form.URLs) != 1 || form.URLs[0] != "https://a" {
			t.Errorf("DecodeJSONBody() urls = %v", form.URLs)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/urls/update", strings.NewReader(`{"urls":`))

		var form map[string]any
		if DecodeJSONBody(w, r, &form) {
			t.Fatalf("DecodeJSONBody() = true, want false")
		}
		if w.Code != http.StatusBadRequest {
			t.Errorf("DecodeJSONBody() status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}
