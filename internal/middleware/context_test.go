package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openkcm/tenant-lifecycle/internal/middleware"
	ctxutils "github.com/openkcm/tenant-lifecycle/utils/context"
)

func TestInjectRequestID(t *testing.T) {
	var seen string

	h := middleware.Chain(
		http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen, _ = ctxutils.GetRequestID(r.Context())
		}),
		middleware.InjectRequestID(),
	)

	t.Run("should keep the caller's request id", func(t *testing.T) {
		req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/tenants", nil)
		req.Header.Set(middleware.RequestIDHeader, "req-42")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "req-42", seen)
		assert.Equal(t, "req-42", rec.Header().Get(middleware.RequestIDHeader))
	})

	t.Run("should generate a request id", func(t *testing.T) {
		req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/tenants", nil)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(middleware.RequestIDHeader))
	})
}
