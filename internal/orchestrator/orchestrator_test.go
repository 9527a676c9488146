package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/tenant-lifecycle/internal/deploy"
	"github.com/openkcm/tenant-lifecycle/internal/event"
	"github.com/openkcm/tenant-lifecycle/internal/fanout"
	"github.com/openkcm/tenant-lifecycle/internal/jobs"
	"github.com/openkcm/tenant-lifecycle/internal/metrics"
	"github.com/openkcm/tenant-lifecycle/internal/model"
	"github.com/openkcm/tenant-lifecycle/internal/orchestrator"
	"github.com/openkcm/tenant-lifecycle/internal/patcher"
	"github.com/openkcm/tenant-lifecycle/internal/registry"
	"github.com/openkcm/tenant-lifecycle/internal/repo/memory"
	"github.com/openkcm/tenant-lifecycle/internal/router"
)

var errBoom = errors.New("boom")

type env struct {
	core    *orchestrator.Core
	bus     *router.LocalBus
	reg     *registry.Registry
	cluster *patcher.Cluster
	metrics *metrics.Metrics

	provisions   atomic.Int32
	failProvider atomic.Bool
	hangProvider atomic.Bool

	mu             sync.Mutex
	failingService string
}

type envConfig struct {
	services []fanout.ServiceRegistration
	deps     []func(*orchestrator.Deps)
}

type envOption func(*envConfig)

func withoutGlobal() envOption {
	return func(c *envConfig) {
		c.deps = append(c.deps, func(d *orchestrator.Deps) {
			d.Global = nil
		})
	}
}

func withService(name string) envOption {
	return func(c *envConfig) {
		c.services = append(c.services, fanout.ServiceRegistration{
			Name:      name,
			URLPrefix: name + "s",
			Image:     "registry.local/" + name + ":1.0",
			Template:  "testdata/" + name + ".yaml",
		})
	}
}

func withGaugeInterval(d time.Duration) envOption {
	return func(c *envConfig) {
		c.deps = append(c.deps, func(deps *orchestrator.Deps) {
			deps.GaugeInterval = d
		})
	}
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()

	cfg := envConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &env{
		bus:     router.NewLocalBus(router.WithBackoff(time.Millisecond)),
		reg:     registry.New(memory.NewStore()),
		cluster: patcher.NewCluster(true),
		metrics: metrics.New(),
	}

	services := fanout.NewServiceRegistry()
	require.NoError(t, services.Register(fanout.ServiceRegistration{
		Name:      "product",
		URLPrefix: "products",
		Image:     "registry.local/product:1.0",
		Template:  "testdata/product.yaml",
	}))
	require.NoError(t, services.Register(fanout.ServiceRegistration{
		Name:      "order",
		URLPrefix: "orders",
		Image:     "registry.local/order:1.0",
		Template:  "testdata/order.yaml",
	}))

	for _, reg := range cfg.services {
		require.NoError(t, services.Register(reg))
	}

	local, err := deploy.NewPatchers(services, e.cluster, e.cluster)
	require.NoError(t, err)

	deployer := fanout.DeployerFunc(func(ctx context.Context, service, tenantID string) error {
		e.mu.Lock()
		failing := e.failingService
		e.mu.Unlock()

		if service == failing {
			return errBoom
		}

		return local.Deploy(ctx, service, tenantID)
	})

	provisioner := jobs.ExecutorFunc(func(ctx context.Context, req jobs.Request) (jobs.Result, error) {
		e.provisions.Add(1)

		if e.hangProvider.Load() {
			<-ctx.Done()
			return jobs.Result{}, ctx.Err()
		}

		if e.failProvider.Load() {
			return jobs.Result{}, errBoom
		}

		e.cluster.AddNamespace(req.TenantID)

		return jobs.Result{Outputs: map[string]string{
			event.FieldTenantConfig: `{"tier":"` + req.Inputs[event.FieldTier] + `"}`,
			event.FieldTenantStatus: model.TenantStatusActive.String(),
		}}, nil
	})

	deprovisioner := jobs.ExecutorFunc(func(context.Context, jobs.Request) (jobs.Result, error) {
		return jobs.Result{Outputs: map[string]string{
			event.FieldTenantStatus: model.TenantStatusDeleted.String(),
		}}, nil
	})

	deps := orchestrator.Deps{
		Bus:      e.bus,
		Registry: e.reg,
		Services: services,
		Jobs: []orchestrator.Job{
			{Descriptor: jobs.ProvisioningJob(100*time.Millisecond, "provisioner:1"), Executor: provisioner},
			{Descriptor: jobs.DeprovisioningJob(time.Second, "provisioner:1"), Executor: deprovisioner},
		},
		Deployer:   deployer,
		Global:     local,
		Metrics:    e.metrics,
		RunnerOpts: []jobs.RunnerOption{jobs.WithPublishRetry(2, time.Millisecond)},

		GaugeInterval: 5 * time.Millisecond,
	}

	for _, apply := range cfg.deps {
		apply(&deps)
	}

	e.core, err = orchestrator.New(deps)
	require.NoError(t, err)
	require.NoError(t, e.core.Start(t.Context()))

	return e
}

func (e *env) failService(service string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.failingService = service
}

func (e *env) onboard(t *testing.T, id string) {
	t.Helper()

	_, err := e.core.Onboard(t.Context(), registry.TenantRequest{
		TenantID:    id,
		CompanyName: "Acme",
		AdminEmail:  "a@acme.com",
		Tier:        "basic",
	})
	require.NoError(t, err)

	e.bus.Wait()
}

func (e *env) status(t *testing.T, id string) model.TenantStatus {
	t.Helper()

	tenant, err := e.core.Get(t.Context(), id)
	require.NoError(t, err)

	return tenant.Status
}

func lookup(t *testing.T, objects map[string]patcher.Resource, key string, path ...string) string {
	t.Helper()

	r, ok := objects[key]
	require.True(t, ok, "missing %s", key)

	v, ok := r.Lookup(path...)
	require.True(t, ok, "missing %v in %s", path, key)

	return v
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := orchestrator.New(orchestrator.Deps{})
	assert.ErrorIs(t, err, orchestrator.ErrMissingDependency)
}

func TestSubscriptions(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, []string{
		"DEPLOY_REQUEST:order",
		"DEPLOY_REQUEST:product",
		"DEPROVISION_SUCCESS",
		"OFFBOARDING_REQUEST",
		"ONBOARDING_REQUEST",
		"PROVISION_SUCCESS",
	}, e.core.Topics())

	assert.Equal(t, []event.DetailType{event.OffboardingRequest, event.OnboardingRequest}, e.core.Jobs().Triggers())
}

func TestOnboardEndToEnd(t *testing.T) {
	e := newEnv(t)

	e.onboard(t, "t-100")

	assert.Empty(t, e.bus.Failures())
	assert.Equal(t, model.TenantStatusActive, e.status(t, "t-100"))
	assert.Equal(t, int32(1), e.provisions.Load())

	tenant, err := e.core.Get(t.Context(), "t-100")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tier":"basic"}`, tenant.TenantConfig)

	deployments, err := e.core.Deployments(t.Context(), "t-100")
	require.NoError(t, err)
	require.Len(t, deployments, 2)

	for _, d := range deployments {
		assert.Equal(t, model.DeploymentSucceeded, d.Status, d.Service)
	}

	objects := e.cluster.Objects("t-100")
	assert.Equal(t, "/t-100/products", lookup(t, objects, "HTTPRoute/product", "metadata", "annotations", "route-path"))
	assert.Equal(t, "/t-100/orders", lookup(t, objects, "HTTPRoute/order", "metadata", "annotations", "route-path"))
	assert.Equal(t, "t-100-service-account",
		lookup(t, objects, "Deployment/product", "spec", "template", "spec", "serviceAccountName"))
	assert.Equal(t, "t-100-service-account",
		lookup(t, objects, "Deployment/order", "spec", "template", "spec", "serviceAccountName"))
	assert.Contains(t, objects, "ServiceAccount/t-100-service-account")

	assert.Equal(t, map[string]int{"t-100": 2}, e.cluster.Writes())

	assert.InDelta(t, 1, testutil.ToFloat64(e.metrics.Deliveries.WithLabelValues(
		"ONBOARDING_REQUEST", metrics.LabelSuccess)), 0)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(e.metrics.Tenants.WithLabelValues("ACTIVE")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestOnboardIsIdempotent(t *testing.T) {
	e := newEnv(t)

	e.onboard(t, "t-100")

	_, err := e.core.Onboard(t.Context(), registry.TenantRequest{
		TenantID:    "t-100",
		CompanyName: "Acme",
		AdminEmail:  "a@acme.com",
		Tier:        "basic",
	})
	assert.ErrorIs(t, err, registry.ErrDuplicateRequest)

	e.bus.Wait()

	assert.Equal(t, int32(1), e.provisions.Load())
	assert.Equal(t, map[string]int{"t-100": 2}, e.cluster.Writes())
}

func TestOnboardRejectsIncompleteRequest(t *testing.T) {
	e := newEnv(t)

	_, err := e.core.Onboard(t.Context(), registry.TenantRequest{TenantID: "t-100", Tier: "basic"})
	assert.ErrorIs(t, err, registry.ErrInvalidRequest)

	_, err = e.core.Get(t.Context(), "t-100")
	assert.ErrorIs(t, err, registry.ErrUnknownTenant)
}

func TestPartialFanoutFailure(t *testing.T) {
	e := newEnv(t, withService("invoice"))
	e.failService("order")

	e.onboard(t, "t-100")

	assert.Equal(t, model.TenantStatusActive, e.status(t, "t-100"))

	degraded, err := e.core.DegradedServices(t.Context(), "t-100")
	require.NoError(t, err)
	assert.Equal(t, []string{"order"}, degraded)

	objects := e.cluster.Objects("t-100")
	assert.Contains(t, objects, "HTTPRoute/invoice")
	assert.Contains(t, objects, "HTTPRoute/product")
	assert.NotContains(t, objects, "HTTPRoute/order")

	deployments, err := e.core.Deployments(t.Context(), "t-100")
	require.NoError(t, err)

	statuses := make(map[string]model.DeploymentStatus, len(deployments))
	for _, d := range deployments {
		statuses[d.Service] = d.Status
	}

	assert.Equal(t, map[string]model.DeploymentStatus{
		"invoice": model.DeploymentSucceeded,
		"order":   model.DeploymentFailed,
		"product": model.DeploymentSucceeded,
	}, statuses)

	failures := e.bus.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "DEPLOY_REQUEST:order", failures[0].Event.Topic())
	assert.ErrorIs(t, failures[0].Err, fanout.ErrDeployFailed)

	t.Run("re-trigger deploys only the failed service", func(t *testing.T) {
		e.failService("")

		retriggered, err := e.core.Retrigger(t.Context(), "t-100")
		require.NoError(t, err)
		assert.Equal(t, event.ProvisionSuccess, retriggered.DetailType)

		e.bus.Wait()

		degraded, err := e.core.DegradedServices(t.Context(), "t-100")
		require.NoError(t, err)
		assert.Empty(t, degraded)

		assert.Contains(t, e.cluster.Objects("t-100"), "HTTPRoute/order")
		assert.Equal(t, map[string]int{"t-100": 3}, e.cluster.Writes())
		assert.Equal(t, int32(1), e.provisions.Load())
	})
}

func TestNamespaceIsolation(t *testing.T) {
	e := newEnv(t)

	var wg sync.WaitGroup

	for _, id := range []string{"t-100", "t-200", "t-300"} {
		wg.Go(func() {
			_, err := e.core.Onboard(t.Context(), registry.TenantRequest{
				TenantID:    id,
				CompanyName: "Acme " + id,
				AdminEmail:  id + "@acme.com",
				Tier:        "basic",
			})
			assert.NoError(t, err)
		})
	}

	wg.Wait()
	e.bus.Wait()

	assert.Equal(t, map[string]int{"t-100": 2, "t-200": 2, "t-300": 2}, e.cluster.Writes())

	for _, id := range []string{"t-100", "t-200", "t-300"} {
		objects := e.cluster.Objects(id)
		assert.Equal(t, "/"+id+"/products", lookup(t, objects, "HTTPRoute/product", "metadata", "annotations", "route-path"))
		assert.Equal(t, id, lookup(t, objects, "Deployment/order", "metadata", "labels", "tenant"))
	}
}

func TestProvisioningFailure(t *testing.T) {
	e := newEnv(t)
	e.failProvider.Store(true)

	e.onboard(t, "t-100")

	tenant, err := e.core.Get(t.Context(), "t-100")
	require.NoError(t, err)
	assert.Equal(t, model.TenantStatusFailed, tenant.Status)
	assert.Equal(t, model.PhaseProvision, tenant.FailedPhase)
	assert.Empty(t, e.cluster.Writes())

	_, err = e.core.Offboard(t.Context(), "t-100")
	assert.ErrorIs(t, err, registry.ErrInvalidState)

	t.Run("re-trigger provisions again", func(t *testing.T) {
		e.failProvider.Store(false)

		retriggered, err := e.core.Retrigger(t.Context(), "t-100")
		require.NoError(t, err)
		assert.Equal(t, event.OnboardingRequest, retriggered.DetailType)

		e.bus.Wait()

		assert.Equal(t, model.TenantStatusActive, e.status(t, "t-100"))
		assert.Equal(t, map[string]int{"t-100": 2}, e.cluster.Writes())
	})
}

func TestProvisioningTimeout(t *testing.T) {
	e := newEnv(t)
	e.hangProvider.Store(true)

	e.onboard(t, "t-100")

	assert.Equal(t, model.TenantStatusProvisioning, e.status(t, "t-100"))

	failures := e.bus.Failures()
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0].Err, jobs.ErrJobTimeout)
	assert.Empty(t, e.cluster.Writes())

	e.hangProvider.Store(false)

	retriggered, err := e.core.Retrigger(t.Context(), "t-100")
	require.NoError(t, err)
	assert.Equal(t, event.OnboardingRequest, retriggered.DetailType)

	e.bus.Wait()

	assert.Equal(t, model.TenantStatusActive, e.status(t, "t-100"))
	assert.Equal(t, int32(2), e.provisions.Load())
}

func TestOffboard(t *testing.T) {
	e := newEnv(t)

	_, err := e.core.Offboard(t.Context(), "t-404")
	assert.ErrorIs(t, err, registry.ErrUnknownTenant)

	e.onboard(t, "t-100")

	_, err = e.core.Offboard(t.Context(), "t-100")
	require.NoError(t, err)

	e.bus.Wait()

	assert.Equal(t, model.TenantStatusDeleted, e.status(t, "t-100"))
	assert.Empty(t, e.bus.Failures())

	_, err = e.core.Offboard(t.Context(), "t-100")
	assert.ErrorIs(t, err, registry.ErrInvalidState)

	_, err = e.core.Retrigger(t.Context(), "t-100")
	assert.ErrorIs(t, err, orchestrator.ErrNothingToRetrigger)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(e.metrics.Tenants.WithLabelValues("DELETED")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTenantGaugeIsRefreshedPeriodically(t *testing.T) {
	e := newEnv(t, withGaugeInterval(time.Hour))

	e.onboard(t, "t-100")

	assert.Equal(t, model.TenantStatusActive, e.status(t, "t-100"))
	assert.InDelta(t, 0, testutil.ToFloat64(e.metrics.Tenants.WithLabelValues("ACTIVE")), 0)

	fresh := newEnv(t, withGaugeInterval(5*time.Millisecond))
	_, err := fresh.reg.RequestProvisioning(t.Context(), registry.TenantRequest{
		TenantID:    "t-200",
		CompanyName: "Acme",
		AdminEmail:  "a@acme.com",
		Tier:        "basic",
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(fresh.metrics.Tenants.WithLabelValues("REQUESTED")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTriggerAndRunDeploy(t *testing.T) {
	e := newEnv(t)

	err := e.core.TriggerDeploy(t.Context(), "t-100", "product")
	assert.ErrorIs(t, err, registry.ErrUnknownTenant)

	e.onboard(t, "t-100")

	err = e.core.TriggerDeploy(t.Context(), "t-100", "product")
	require.NoError(t, err)

	e.bus.Wait()
	assert.Equal(t, map[string]int{"t-100": 3}, e.cluster.Writes())

	err = e.core.RunDeploy(t.Context(), "t-100", "order")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"t-100": 4}, e.cluster.Writes())

	err = e.core.RunDeploy(t.Context(), "t-100", "billing")
	assert.ErrorIs(t, err, fanout.ErrUnknownService)

	err = e.core.TriggerDeploy(t.Context(), "t-100", "billing")
	assert.ErrorIs(t, err, fanout.ErrUnknownService)

	e.failService("order")

	err = e.core.RunDeploy(t.Context(), "t-100", "order")
	require.ErrorIs(t, err, fanout.ErrDeployFailed)

	degraded, err := e.core.DegradedServices(t.Context(), "t-100")
	require.NoError(t, err)
	assert.Equal(t, []string{"order"}, degraded)
}

func TestDeployAll(t *testing.T) {
	t.Run("no tenants is not a failure", func(t *testing.T) {
		e := newEnv(t)

		result, err := e.core.DeployAll(t.Context(), "product")
		require.NoError(t, err)
		assert.Equal(t, 0, result.Namespaces)
	})

	t.Run("applies every namespace and surfaces failures", func(t *testing.T) {
		e := newEnv(t)

		e.onboard(t, "t-100")
		e.onboard(t, "t-200")
		e.cluster.FailNamespace("t-100", errBoom)

		result, err := e.core.DeployAll(t.Context(), "product")
		require.ErrorIs(t, err, patcher.ErrGlobalDeployIncomplete)

		assert.Equal(t, 2, result.Namespaces)
		assert.Equal(t, []string{"t-200"}, result.Applied)
		require.Len(t, result.Failed, 1)
		assert.Equal(t, "t-100", result.Failed[0].Namespace)
		assert.Equal(t, 3, e.cluster.Writes()["t-200"])
	})

	t.Run("unknown service", func(t *testing.T) {
		e := newEnv(t)

		_, err := e.core.DeployAll(t.Context(), "billing")
		assert.ErrorIs(t, err, fanout.ErrUnknownService)
	})

	t.Run("without global deployer", func(t *testing.T) {
		e := newEnv(t, withoutGlobal())

		_, err := e.core.DeployAll(t.Context(), "product")
		assert.ErrorIs(t, err, orchestrator.ErrGlobalDeployUnavailable)
	})
}
