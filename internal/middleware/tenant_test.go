package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/tenant-lifecycle/internal/middleware"
	ctxutils "github.com/openkcm/tenant-lifecycle/utils/context"
)

func TestTenantFromPath(t *testing.T) {
	var seen string

	h := middleware.TenantFromPath("tenantId")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		seen, err = ctxutils.ExtractTenantID(r.Context())
		assert.NoError(t, err)
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("should scope the context to the path tenant", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.Handle("GET /tenants/{tenantId}/resources", h)

		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/tenants/t-100/resources", nil))

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "t-100", seen)
	})

	t.Run("should reject a request without the path value", func(t *testing.T) {
		seen = ""

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/resources", nil))

		require.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "PARAMS_ERROR")
		assert.Empty(t, seen)
	})
}
