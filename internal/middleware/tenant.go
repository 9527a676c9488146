package middleware

import (
	"net/http"
	"strings"

	"github.com/bartventer/gorm-multitenancy/middleware/nethttp/v8"

	"github.com/openkcm/tenant-lifecycle/internal/api/write"
	"github.com/openkcm/tenant-lifecycle/internal/apierrors"
	"github.com/openkcm/tenant-lifecycle/internal/log"
)

// TenantFromPath scopes the request context to the tenant named by the param
// path value. It wraps a single route, the path value is only set once the
// mux matched.
func TenantFromPath(param string) func(http.Handler) http.Handler {
	return nethttp.WithTenant(nethttp.WithTenantConfig{
		TenantGetters: []func(r *http.Request) (string, error){
			func(r *http.Request) (string, error) {
				tenant := strings.TrimSpace(r.PathValue(param))
				if tenant == "" {
					return "", nethttp.ErrTenantInvalid
				}

				return tenant, nil
			},
		},
		ContextKey: nethttp.TenantKey,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			ctx := r.Context()

			log.Debug(ctx, "Request without tenant", log.ErrorAttr(err))
			write.ErrorResponse(ctx, w, apierrors.ParamsErrorMessage(err.Error()))
		},
	})
}
