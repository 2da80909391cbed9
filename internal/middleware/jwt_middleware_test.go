package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"claude_gateway/internal/auth"
)

var testSecret = []byte("middleware-test-secret")

func tokenFor(t *testing.T, caller auth.Caller) string {
	t.Helper()
	token, _, err := auth.GenerateJWT(caller, time.Minute, testSecret)
	if err != nil {
		t.Fatalf("GenerateJWT() error = %v", err)
	}
	return token
}

func TestCallerMiddleware(t *testing.T) {
	var seen auth.Caller
	handler := CallerMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetCaller(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("valid token", func(t *testing.T) {
		caller := auth.Caller{ID: "u-1", Name: "Ada", Role: auth.RoleUser}
		req := httptest.NewRequest(http.MethodGet, "/models", nil)
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, caller))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
		}
		if seen != caller {
			t.Errorf("caller = %+v, want %+v", seen, caller)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/models", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/models", nil)
		req.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := CallerMiddleware(testSecret)(RequireRole(auth.RoleAdmin)(ok))

	tests := []struct {
		role auth.Role
		want int
	}{
		{auth.RoleAdmin, http.StatusOK},
		{auth.RoleInstructor, http.StatusForbidden},
		{auth.RoleUser, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/config", nil)
			req.Header.Set("Authorization", "Bearer "+tokenFor(t, auth.Caller{ID: "x", Role: tt.role}))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || w.Header().Get("X-Request-ID") != seen {
		t.Errorf("generated id = %q, header = %q", seen, w.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc" {
		t.Errorf("reused id = %q, want abc", seen)
	}
}
