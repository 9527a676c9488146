package fanout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/tenant-lifecycle/internal/event"
	"github.com/openkcm/tenant-lifecycle/internal/fanout"
	"github.com/openkcm/tenant-lifecycle/internal/model"
	"github.com/openkcm/tenant-lifecycle/internal/registry"
	"github.com/openkcm/tenant-lifecycle/internal/repo/memory"
	"github.com/openkcm/tenant-lifecycle/internal/router"
)

var errBoom = errors.New("boom")

// publisher fails the deploy triggers of the services in fail.
type publisher struct {
	mu     sync.Mutex
	fail   map[string]bool
	events []event.LifecycleEvent
}

func (p *publisher) Publish(_ context.Context, e event.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fail[e.Service] {
		return errBoom
	}

	p.events = append(p.events, e)

	return nil
}

func (p *publisher) services() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var s []string
	for _, e := range p.events {
		s = append(s, e.Service)
	}

	return s
}

func setup(t *testing.T, names ...string) (*registry.Registry, *fanout.ServiceRegistry) {
	t.Helper()

	reg := registry.New(memory.NewStore())

	_, err := reg.RequestProvisioning(t.Context(), registry.TenantRequest{TenantID: "t-100", Tier: "basic"})
	require.NoError(t, err)

	_, err = reg.MarkProvisioned(t.Context(), "t-100", "{}")
	require.NoError(t, err)

	services := fanout.NewServiceRegistry()
	for _, n := range names {
		require.NoError(t, services.Register(service(n)))
	}

	return reg, services
}

func provisioned(id string) event.LifecycleEvent {
	return event.New(event.ProvisionSuccess, id, map[string]string{
		event.FieldTenantConfig: "{}",
		event.FieldTenantStatus: "ACTIVE",
	})
}

func statuses(t *testing.T, reg *registry.Registry) map[string]model.DeploymentStatus {
	t.Helper()

	deployments, err := reg.Deployments(t.Context(), "t-100")
	require.NoError(t, err)

	out := make(map[string]model.DeploymentStatus, len(deployments))
	for _, d := range deployments {
		out[d.Service] = d.Status
	}

	return out
}

func TestFanoutPublishesOneTriggerPerService(t *testing.T) {
	reg, services := setup(t, "products", "orders")
	pub := &publisher{}

	require.NoError(t, fanout.New(services, pub, reg).Consume(t.Context(), provisioned("t-100")))

	assert.ElementsMatch(t, []string{"products", "orders"}, pub.services())

	for _, e := range pub.events {
		assert.Equal(t, "t-100", e.TenantID)
		assert.Equal(t, event.DeployRequest, e.DetailType)
	}

	assert.Equal(t, map[string]model.DeploymentStatus{
		"products": model.DeploymentPending,
		"orders":   model.DeploymentPending,
	}, statuses(t, reg))
}

func TestFanoutPartialFailure(t *testing.T) {
	reg, services := setup(t, "products", "orders", "billing")
	pub := &publisher{fail: map[string]bool{"orders": true}}
	f := fanout.New(services, pub, reg)

	err := f.Consume(t.Context(), provisioned("t-100"))
	require.ErrorIs(t, err, fanout.ErrPartialFanout)
	require.ErrorIs(t, err, errBoom)
	assert.False(t, router.IsTerminal(err))

	var partial *fanout.PartialFanoutFailure
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"orders"}, partial.Services)
	assert.True(t, partial.Failed("orders"))

	assert.ElementsMatch(t, []string{"products", "billing"}, pub.services())
	assert.Equal(t, model.DeploymentFailed, statuses(t, reg)["orders"])

	degraded, err := reg.DegradedServices(t.Context(), "t-100")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, degraded)

	tenant, err := reg.Get(t.Context(), "t-100")
	require.NoError(t, err)
	assert.Equal(t, model.TenantStatusActive, tenant.Status)
}

func TestFanoutRedeliverySkipsSucceededServices(t *testing.T) {
	reg, services := setup(t, "products", "orders")
	ctx := t.Context()

	require.NoError(t, reg.RecordDeployment(ctx, "t-100", "products", model.DeploymentSucceeded, ""))
	require.NoError(t, reg.RecordDeployment(ctx, "t-100", "orders", model.DeploymentFailed, "boom"))

	pub := &publisher{}
	require.NoError(t, fanout.New(services, pub, reg).Consume(ctx, provisioned("t-100")))

	assert.Equal(t, []string{"orders"}, pub.services())
	assert.Equal(t, model.DeploymentPending, statuses(t, reg)["orders"])
}

func TestDeployConsumer(t *testing.T) {
	reg, _ := setup(t)

	var calls []string

	ok := fanout.DeployerFunc(func(_ context.Context, service, tenantID string) error {
		calls = append(calls, service+"@"+tenantID)
		return nil
	})

	require.NoError(t, fanout.NewDeployConsumer("products", ok, reg).
		Consume(t.Context(), event.NewDeployRequest("products", "t-100")))
	assert.Equal(t, []string{"products@t-100"}, calls)

	failing := fanout.DeployerFunc(func(context.Context, string, string) error { return errBoom })

	err := fanout.NewDeployConsumer("orders", failing, reg).
		Consume(t.Context(), event.NewDeployRequest("orders", "t-100"))
	require.ErrorIs(t, err, fanout.ErrDeployFailed)
	assert.True(t, router.IsTerminal(err))

	assert.Equal(t, map[string]model.DeploymentStatus{
		"products": model.DeploymentSucceeded,
		"orders":   model.DeploymentFailed,
	}, statuses(t, reg))

	tenant, err := reg.Get(t.Context(), "t-100")
	require.NoError(t, err)
	assert.Equal(t, model.TenantStatusActive, tenant.Status)
}

func TestInactiveTenantIsSkipped(t *testing.T) {
	deployer := func(calls *[]string) fanout.Deployer {
		return fanout.DeployerFunc(func(_ context.Context, service, tenantID string) error {
			*calls = append(*calls, service+"@"+tenantID)
			return nil
		})
	}

	t.Run("offboarded before the redelivery", func(t *testing.T) {
		reg, services := setup(t, "products", "orders")

		_, err := reg.RequestDeprovisioning(t.Context(), "t-100", time.Minute)
		require.NoError(t, err)

		pub := &publisher{}
		require.NoError(t, fanout.New(services, pub, reg).Consume(t.Context(), provisioned("t-100")))
		assert.Empty(t, pub.services())

		var calls []string

		require.NoError(t, fanout.NewDeployConsumer("products", deployer(&calls), reg).
			Consume(t.Context(), event.NewDeployRequest("products", "t-100")))
		assert.Empty(t, calls)
		assert.Empty(t, statuses(t, reg))
	})

	t.Run("unknown tenant is terminal", func(t *testing.T) {
		reg, services := setup(t, "products")

		err := fanout.New(services, &publisher{}, reg).Consume(t.Context(), provisioned("t-404"))
		require.ErrorIs(t, err, registry.ErrUnknownTenant)
		assert.True(t, router.IsTerminal(err))

		var calls []string

		err = fanout.NewDeployConsumer("products", deployer(&calls), reg).
			Consume(t.Context(), event.NewDeployRequest("products", "t-404"))
		require.ErrorIs(t, err, registry.ErrUnknownTenant)
		assert.True(t, router.IsTerminal(err))
		assert.Empty(t, calls)
	})
}
