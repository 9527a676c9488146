// Package fanout turns a provisioned tenant into one deploy trigger per
// registered service and records the outcome of every service deploy.
package fanout

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/openkcm/tenant-lifecycle/internal/constants"
	"github.com/openkcm/tenant-lifecycle/internal/event"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	"github.com/openkcm/tenant-lifecycle/internal/metrics"
	"github.com/openkcm/tenant-lifecycle/internal/model"
	"github.com/openkcm/tenant-lifecycle/internal/registry"
	"github.com/openkcm/tenant-lifecycle/internal/router"
)

// Deployments is the per-(tenant, service) deploy record.
type Deployments interface {
	Get(ctx context.Context, id string) (*model.Tenant, error)
	RecordDeployment(ctx context.Context, tenantID, service string, status model.DeploymentStatus, reason string) error
	Deployments(ctx context.Context, tenantID string) ([]*model.ServiceDeployment, error)
}

var _ Deployments = (*registry.Registry)(nil)

type Option func(*Fanout)

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fanout) {
		f.metrics = m
	}
}

// Fanout consumes PROVISION_SUCCESS.
type Fanout struct {
	services    *ServiceRegistry
	publisher   router.Publisher
	deployments Deployments
	metrics     *metrics.Metrics
}

var _ router.Consumer = (*Fanout)(nil)

func New(services *ServiceRegistry, publisher router.Publisher, deployments Deployments, opts ...Option) *Fanout {
	f := &Fanout{
		services:    services,
		publisher:   publisher,
		deployments: deployments,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Consume publishes a DEPLOY_REQUEST per service and returns without waiting
// for the deploys. Services whose last deploy succeeded are skipped, so a
// redelivery only retries the failed triggers.
func (f *Fanout) Consume(ctx context.Context, e event.LifecycleEvent) error {
	ctx = log.InjectTenant(ctx, e.TenantID)

	ok, err := active(ctx, f.deployments, e.TenantID)
	if !ok {
		return err
	}

	done, err := f.succeeded(ctx, e.TenantID)
	if err != nil {
		return err
	}

	var (
		mu     sync.Mutex
		failed []string
		errAll error
	)

	eg, egCtx := errgroup.WithContext(ctx)

	for _, svc := range f.services.Services() {
		if slices.Contains(done, svc.Name) {
			continue
		}

		eg.Go(func() error {
			err := f.trigger(egCtx, e.TenantID, svc.Name)
			if err != nil {
				mu.Lock()
				failed = append(failed, svc.Name)
				errAll = multierr.Append(errAll, err)
				mu.Unlock()
			}

			// one failing service must not cancel the others
			return nil
		})
	}

	_ = eg.Wait()

	if len(failed) == 0 {
		log.Info(ctx, "Deploy triggers published", slog.Int("services", len(f.services.Services())-len(done)))
		return nil
	}

	slices.Sort(failed)

	failure := &PartialFanoutFailure{TenantID: e.TenantID, Services: failed, Err: errAll}
	log.Error(ctx, "Deploy fan-out partially failed", failure)

	return failure
}

// Trigger publishes the DEPLOY_REQUEST of one registered service, whatever
// the outcome of its last deploy.
func (f *Fanout) Trigger(ctx context.Context, tenantID, service string) error {
	_, err := f.services.Get(service)
	if err != nil {
		return err
	}

	return f.trigger(log.InjectTenant(ctx, tenantID), tenantID, service)
}

func (f *Fanout) trigger(ctx context.Context, tenantID, service string) error {
	ctx = log.InjectService(ctx, service)

	err := f.deployments.RecordDeployment(ctx, tenantID, service, model.DeploymentPending, "")
	if err != nil {
		f.metrics.DeployTriggered(service, metrics.LabelFailure)
		return err
	}

	err = f.publisher.Publish(ctx, event.NewDeployRequest(service, tenantID))
	if err != nil {
		f.metrics.DeployTriggered(service, metrics.LabelFailure)

		recErr := f.deployments.RecordDeployment(context.WithoutCancel(ctx), tenantID, service,
			model.DeploymentFailed, "deploy trigger failed: "+err.Error())
		if recErr != nil {
			log.Error(ctx, "Recording failed deploy trigger", recErr)
		}

		return err
	}

	f.metrics.DeployTriggered(service, metrics.LabelSuccess)
	log.Debug(ctx, "Deploy trigger published", slog.String(constants.LogKeyService, service))

	return nil
}

func (f *Fanout) succeeded(ctx context.Context, tenantID string) ([]string, error) {
	deployments, err := f.deployments.Deployments(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var done []string

	for _, d := range deployments {
		if d.Status == model.DeploymentSucceeded {
			done = append(done, d.Service)
		}
	}

	return done, nil
}

// active reports whether tenantID is still ACTIVE. A redelivery may arrive
// after the tenant moved on, it is then dropped without an error.
func active(ctx context.Context, deployments Deployments, tenantID string) (bool, error) {
	tenant, err := deployments.Get(ctx, tenantID)
	if errors.Is(err, registry.ErrUnknownTenant) {
		return false, router.Terminal(err)
	}

	if err != nil {
		return false, err
	}

	if tenant.Status != model.TenantStatusActive {
		log.Info(ctx, "Skipping delivery for inactive tenant", slog.String("tenantStatus", tenant.Status.String()))
		return false, nil
	}

	return true, nil
}
