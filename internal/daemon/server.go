// Package daemon runs the tenant intake HTTP server.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/handlers"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	"github.com/openkcm/tenant-lifecycle/internal/middleware"
)

const (
	ReadHeaderTimeout = 5 * time.Second
	ReadTimeout       = 10 * time.Second
	WriteTimeout      = 10 * time.Second
	IdleTimeout       = 120 * time.Second
	ServerLogDomain   = "server daemon"

	APIVersionedNamespace = "/lifecycle/v1"
	MetricsPath           = "/metrics"

	defaultShutdownTimeout = 5 * time.Second
)

type IntakeServer struct {
	cfg    config.HTTPServer
	server *http.Server
}

// Service is everything the intake API calls.
type Service interface {
	handlers.TenantService
	handlers.ResourceService
}

// NewIntakeServer serves the tenant API under APIVersionedNamespace and the
// gatherer's metrics on MetricsPath. A nil gatherer disables metrics.
func NewIntakeServer(cfg config.HTTPServer, svc Service, gatherer prometheus.Gatherer) *IntakeServer {
	return &IntakeServer{
		cfg: cfg,
		server: &http.Server{
			Addr:              cfg.Address,
			Handler:           NewHandler(svc, gatherer),
			ReadHeaderTimeout: ReadHeaderTimeout,
			ReadTimeout:       ReadTimeout,
			WriteTimeout:      WriteTimeout,
			IdleTimeout:       IdleTimeout,
		},
	}
}

// NewHandler wires the intake routes behind the request middlewares.
func NewHandler(svc Service, gatherer prometheus.Gatherer) http.Handler {
	h := handlers.NewTenants(svc)
	res := handlers.NewResources(svc)
	scoped := middleware.TenantFromPath(handlers.TenantPathParam)

	api := NewServeMux(APIVersionedNamespace)
	api.HandleFunc("POST /tenants", h.Onboard)
	api.HandleFunc("GET /tenants", h.List)
	api.HandleFunc("GET /tenants/{tenantId}", h.Get)
	api.HandleFunc("DELETE /tenants/{tenantId}", h.Offboard)
	api.HandleFunc("POST /tenants/{tenantId}/retrigger", h.Retrigger)
	api.HandleFunc("POST /tenants/{tenantId}/deploy/{service}", h.TriggerDeploy)
	api.HandleFunc("POST /services/{service}/deploy-all", h.DeployAll)
	api.Handle("POST /tenants/{tenantId}/resources", scoped(http.HandlerFunc(res.Create)))
	api.Handle("GET /tenants/{tenantId}/resources", scoped(http.HandlerFunc(res.List)))
	api.Handle("GET /tenants/{tenantId}/resources/{resourceId}", scoped(http.HandlerFunc(res.Get)))
	api.Handle("DELETE /tenants/{tenantId}/resources/{resourceId}", scoped(http.HandlerFunc(res.Delete)))

	root := http.NewServeMux()
	root.Handle(APIVersionedNamespace+"/", middleware.Chain(api,
		middleware.InjectRequestID(),
		middleware.PanicRecoveryMiddleware(),
		middleware.LoggingMiddleware(),
	))

	if gatherer != nil {
		root.Handle("GET "+MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return root
}

func (s *IntakeServer) Start(ctx context.Context) error {
	go func() {
		log.Info(ctx, "Starting intake server", slog.String("address", s.cfg.Address))

		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server encountered an error", err)

			_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
		}
	}()

	return nil
}

func (s *IntakeServer) Close(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	shutdownCtx, shutdownRelease := context.WithTimeout(ctx, timeout)
	defer shutdownRelease()

	err := s.server.Shutdown(shutdownCtx)
	if err != nil {
		return oops.In(ServerLogDomain).
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	log.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}
