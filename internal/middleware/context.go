package middleware

import (
	"net/http"

	ctxutils "github.com/openkcm/tenant-lifecycle/utils/context"
)

const RequestIDHeader = "X-Request-Id"

// InjectRequestID puts the caller's request ID, or a fresh one, into the
// request context and echoes it on the response.
func InjectRequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if id := r.Header.Get(RequestIDHeader); id != "" {
				ctx = ctxutils.WithRequestIDValue(ctx, id)
			} else {
				ctx = ctxutils.InjectRequestID(ctx)
			}

			requestID, _ := ctxutils.GetRequestID(ctx)
			w.Header().Set(RequestIDHeader, requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
