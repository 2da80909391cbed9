package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the error body returned to clients. The "detail" key
// matches what the chat frontend already parses.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// RespondWithError sends an error response
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Detail: message})
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode response: "+err.Error(), http.StatusInternalServerError)
		return err
	}
	return nil
}

// DecodeJSONBody decodes a JSON request body into dst and writes a 400 on failure.
// It returns false when the caller should stop handling the request.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
