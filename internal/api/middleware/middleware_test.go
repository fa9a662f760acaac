package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pushbucket/pushbucket/internal/api/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestID_Generated(t *testing.T) {
	var ctxID string
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = middleware.GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	headerID := rec.Header().Get("X-Request-Id")
	if headerID == "" {
		t.Fatal("X-Request-Id header not set")
	}
	if !strings.HasPrefix(headerID, "req_") {
		t.Errorf("request ID %q missing req_ prefix", headerID)
	}
	if ctxID != headerID {
		t.Errorf("context ID %q != header ID %q", ctxID, headerID)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	handler := middleware.RequestID(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req_from_caller")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "req_from_caller" {
		t.Errorf("X-Request-Id = %q, want caller's ID", got)
	}
}

func TestRelayAuth(t *testing.T) {
	cases := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{"valid token", "tok_relay", "Bearer tok_relay", http.StatusOK},
		{"case-insensitive scheme", "tok_relay", "bearer tok_relay", http.StatusOK},
		{"missing header", "tok_relay", "", http.StatusUnauthorized},
		{"wrong token", "tok_relay", "Bearer tok_other", http.StatusUnauthorized},
		{"wrong scheme", "tok_relay", "Basic tok_relay", http.StatusUnauthorized},
		{"unconfigured rejects everything", "", "Bearer tok_relay", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := middleware.RelayAuth(tc.token)(okHandler())

			req := httptest.NewRequest(http.MethodPost, "/notifications/notify-external", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.want == http.StatusUnauthorized &&
				rec.Header().Get("Content-Type") != "application/problem+json" {
				t.Errorf("Content-Type = %q, want problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}
}
