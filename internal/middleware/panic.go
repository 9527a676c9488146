package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/openkcm/tenant-lifecycle/internal/api/write"
	"github.com/openkcm/tenant-lifecycle/internal/apierrors"
	"github.com/openkcm/tenant-lifecycle/internal/log"
)

// PanicRecoveryMiddleware turns a handler panic into a 500 response.
func PanicRecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func(ctx context.Context) {
				rec := recover()
				if rec == nil {
					return
				}

				//nolint:err113
				log.Error(ctx, "Panic Occurred", fmt.Errorf("%v", rec),
					slog.String("stackTrace", string(debug.Stack())),
				)

				write.ErrorResponse(ctx, w, apierrors.InternalServerErrorMessage())
			}(r.Context())

			next.ServeHTTP(w, r)
		})
	}
}

// Chain wraps h so the first middleware runs first.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}

	return h
}
