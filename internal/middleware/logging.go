package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/openkcm/tenant-lifecycle/internal/log"
)

// LoggingMiddleware logs each intake request with its route, status and duration.
func LoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := log.InjectRequest(r.Context(), r)
			r = r.WithContext(ctx)

			log.Debug(ctx, "Received Request")

			start := time.Now()
			srw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(srw, r)

			attrs := []slog.Attr{
				slog.String("Route", r.Pattern),
				slog.Int("HttpStatus", srw.statusCode),
				slog.Duration("Duration", time.Since(start)),
			}

			if srw.statusCode >= http.StatusInternalServerError {
				log.Warn(ctx, "Request Failed", attrs...)
				return
			}

			log.Info(ctx, "Request Completed", attrs...)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter

	statusCode int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.statusCode = code
	s.ResponseWriter.WriteHeader(code)
}
