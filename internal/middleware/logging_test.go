package middleware_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openkcm/tenant-lifecycle/internal/middleware"
)

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	t.Run("should log completed requests", func(t *testing.T) {
		buf.Reset()

		h := middleware.LoggingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}))

		req := httptest.NewRequestWithContext(t.Context(), http.MethodPost, "/tenants", nil)
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)

		for _, want := range []string{
			"Received Request",
			"Request Completed",
			fmt.Sprintf("HttpStatus=%d", http.StatusAccepted),
			"path=/tenants",
		} {
			assert.Contains(t, buf.String(), want)
		}
	})

	t.Run("should warn on server errors", func(t *testing.T) {
		buf.Reset()

		h := middleware.LoggingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

		req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/tenants", nil)
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.Contains(t, buf.String(), "level=WARN")
		assert.Contains(t, buf.String(), "Request Failed")
	})
}
