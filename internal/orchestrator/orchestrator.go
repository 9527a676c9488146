// Package orchestrator composes the event router, the job runners and the
// deploy fan-out into the tenant onboarding and offboarding pipeline.
package orchestrator

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/event"
	"github.com/openkcm/tenant-lifecycle/internal/fanout"
	"github.com/openkcm/tenant-lifecycle/internal/jobs"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	"github.com/openkcm/tenant-lifecycle/internal/metrics"
	"github.com/openkcm/tenant-lifecycle/internal/model"
	"github.com/openkcm/tenant-lifecycle/internal/patcher"
	"github.com/openkcm/tenant-lifecycle/internal/registry"
	"github.com/openkcm/tenant-lifecycle/internal/router"
)

// GlobalDeployer re-applies one service to every tenant namespace.
type GlobalDeployer interface {
	DeployAll(ctx context.Context, service string) (patcher.Result, error)
}

// Job binds a descriptor to the executor running it.
type Job struct {
	Descriptor jobs.JobDescriptor
	Executor   jobs.Executor
	// Opts apply to this job's runner after Deps.RunnerOpts.
	Opts []jobs.RunnerOption
}

type Deps struct {
	Bus      router.Bus
	Registry *registry.Registry
	Services *fanout.ServiceRegistry
	Jobs     []Job
	// Deployer runs single-tenant deploys, in process or on a deploy agent.
	Deployer fanout.Deployer
	// Global is optional, without it DeployAll is rejected.
	Global     GlobalDeployer
	Metrics    *metrics.Metrics
	RunnerOpts []jobs.RunnerOption
	// GaugeInterval is how often the tenant gauge is recounted.
	GaugeInterval time.Duration
}

const defaultGaugeInterval = time.Minute

func (d Deps) validate() error {
	switch {
	case d.Bus == nil:
		return errs.Wrapf(ErrMissingDependency, "bus")
	case d.Registry == nil:
		return errs.Wrapf(ErrMissingDependency, "registry")
	case d.Services == nil:
		return errs.Wrapf(ErrMissingDependency, "services")
	case d.Deployer == nil:
		return errs.Wrapf(ErrMissingDependency, "deployer")
	default:
		return nil
	}
}

type Core struct {
	router   *router.Router
	table    *jobs.Table
	registry *registry.Registry
	services *fanout.ServiceRegistry
	fanout   *fanout.Fanout
	deployer fanout.Deployer
	global   GlobalDeployer
	metrics  *metrics.Metrics

	gaugeInterval time.Duration
}

// New wires every consumer on a fresh router. The subscriptions are fixed
// once New returns, Start seals them.
func New(deps Deps) (*Core, error) {
	err := deps.validate()
	if err != nil {
		return nil, err
	}

	deps.Services.Freeze()

	c := &Core{
		router:   router.New(deps.Bus),
		table:    jobs.NewTable(),
		registry: deps.Registry,
		services: deps.Services,
		deployer: deps.Deployer,
		global:   deps.Global,
		metrics:  deps.Metrics,

		gaugeInterval: deps.GaugeInterval,
	}

	if c.gaugeInterval <= 0 {
		c.gaugeInterval = defaultGaugeInterval
	}

	runnerOpts := append([]jobs.RunnerOption{jobs.WithMetrics(deps.Metrics)}, deps.RunnerOpts...)

	for _, job := range deps.Jobs {
		err = c.table.Register(job.Descriptor)
		if err != nil {
			return nil, err
		}

		opts := append(slices.Clone(runnerOpts), job.Opts...)
		runner := jobs.NewRunner(job.Descriptor, job.Executor, deps.Registry, c.router, opts...)
		topic := event.Topic(job.Descriptor.Trigger, "")

		// the job times out on its own, the bus must not retry it first
		if tb, ok := deps.Bus.(router.TimeoutBus); ok {
			tb.SetTimeout(topic, runner.Deadline())
		}

		err = c.subscribe(topic, runner)
		if err != nil {
			return nil, err
		}
	}

	c.fanout = fanout.New(deps.Services, c.router, deps.Registry, fanout.WithMetrics(deps.Metrics))

	err = c.subscribe(event.Topic(event.ProvisionSuccess, ""), c.fanout)
	if err != nil {
		return nil, err
	}

	for _, svc := range deps.Services.Services() {
		consumer := fanout.NewDeployConsumer(svc.Name, deps.Deployer, deps.Registry)

		err = c.subscribe(event.Topic(event.DeployRequest, svc.Name), consumer)
		if err != nil {
			return nil, err
		}
	}

	for _, dt := range []event.DetailType{event.ProvisionSuccess, event.DeprovisionSuccess} {
		err = c.subscribe(event.Topic(dt, ""), router.ConsumerFunc(c.observeLifecycle))
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Start seals the router and binds it on the bus. The tenant gauge is kept
// current until ctx is done.
func (c *Core) Start(ctx context.Context) error {
	err := c.router.Start(ctx)
	if err != nil {
		return err
	}

	if c.metrics != nil {
		c.refreshTenantGauge(ctx)

		go c.watchTenants(ctx)
	}

	return nil
}

// Publisher is the router, for components emitting events themselves.
func (c *Core) Publisher() router.Publisher {
	return c.router
}

// Topics lists every subscribed topic.
func (c *Core) Topics() []string {
	return c.router.Topics()
}

// Jobs lists the registered job descriptors keyed by their trigger.
func (c *Core) Jobs() *jobs.Table {
	return c.table
}

func (c *Core) subscribe(topic string, consumer router.Consumer) error {
	return c.router.Subscribe(topic, c.observed(topic, consumer))
}

// observed counts the deliveries of consumer on topic.
func (c *Core) observed(topic string, consumer router.Consumer) router.Consumer {
	return router.ConsumerFunc(func(ctx context.Context, e event.LifecycleEvent) error {
		err := consumer.Consume(ctx, e)

		switch {
		case err == nil:
			c.metrics.Delivered(topic, metrics.LabelSuccess)
		case router.IsTerminal(err):
			c.metrics.Delivered(topic, metrics.LabelTerminal)
		default:
			c.metrics.Delivered(topic, metrics.LabelFailure)
		}

		return err
	})
}

// observeLifecycle reports completed lifecycle phases.
func (c *Core) observeLifecycle(ctx context.Context, e event.LifecycleEvent) error {
	status, _ := e.Field(event.FieldTenantStatus)

	switch e.DetailType {
	case event.DeprovisionSuccess:
		log.Info(ctx, "Tenant offboarded", slog.String("tenantStatus", status))
	default:
		log.Info(ctx, "Tenant provisioned", slog.String("tenantStatus", status))
	}

	return nil
}

func (c *Core) watchTenants(ctx context.Context) {
	ticker := time.NewTicker(c.gaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshTenantGauge(ctx)
		}
	}
}

func (c *Core) refreshTenantGauge(ctx context.Context) {
	byStatus, err := c.registry.CountByStatus(ctx)
	if err != nil {
		log.Warn(ctx, "Counting tenants failed", log.ErrorAttr(err))
		return
	}

	counts := make(map[string]int, len(byStatus))
	for status, n := range byStatus {
		counts[status.String()] = n
	}

	c.metrics.SetTenants(counts)
}

func requireStatus(tenant *model.Tenant, allowed ...model.TenantStatus) error {
	for _, s := range allowed {
		if tenant.Status == s {
			return nil
		}
	}

	return errs.Wrapf(registry.ErrInvalidState, "tenant "+tenant.ID+" is "+tenant.Status.String())
}
