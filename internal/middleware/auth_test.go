package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestTokenMiddleware(t *testing.T) {
	h := TokenMiddleware("s3cret")(okHandler())

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"no credentials", "/api/status", "", http.StatusUnauthorized},
		{"bearer header", "/api/status", "Bearer s3cret", http.StatusOK},
		{"wrong bearer", "/api/status", "Bearer nope", http.StatusUnauthorized},
		{"basic scheme", "/api/status", "Basic s3cret", http.StatusUnauthorized},
		{"query token", "/api/events?token=s3cret", "", http.StatusOK},
		{"wrong query token", "/api/events?token=x", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestTokenMiddleware_EmptyTokenDisablesAuth(t *testing.T) {
	h := TokenMiddleware("")(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 without a configured token, got %d", rec.Code)
	}
}
