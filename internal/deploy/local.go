// Package deploy runs per-service deploys, either in process through the
// namespace patchers or on a remote deploy agent.
package deploy

import (
	"context"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/fanout"
	"github.com/openkcm/tenant-lifecycle/internal/metrics"
	"github.com/openkcm/tenant-lifecycle/internal/patcher"
)

// Local deploys through one patcher per service.
type Local struct {
	patchers map[string]*patcher.Patcher
	order    []string
}

var _ fanout.Deployer = (*Local)(nil)

func NewLocal(patchers ...*patcher.Patcher) *Local {
	l := &Local{patchers: make(map[string]*patcher.Patcher, len(patchers))}

	for _, p := range patchers {
		name := p.Service().Name
		if _, ok := l.patchers[name]; !ok {
			l.order = append(l.order, name)
		}

		l.patchers[name] = p
	}

	return l
}

// NewPatchers loads the template of every service and builds its patcher.
func NewPatchers(
	services *fanout.ServiceRegistry,
	applier patcher.Applier,
	lister patcher.NamespaceLister,
	opts ...patcher.Option,
) (*Local, error) {
	var patchers []*patcher.Patcher

	for _, svc := range services.Services() {
		tmpl, err := patcher.LoadTemplate(svc.Template)
		if err != nil {
			return nil, errs.Wrap(ErrLoadingTemplate, err)
		}

		patchers = append(patchers, patcher.New(svc, tmpl, applier, lister, opts...))
	}

	return NewLocal(patchers...), nil
}

// NewKubectlPatchers wires the patchers to kubectl as configured.
func NewKubectlPatchers(cfg config.Patcher, services *fanout.ServiceRegistry, lister patcher.NamespaceLister, m *metrics.Metrics) (*Local, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, errs.Wrap(ErrUnknownNamespaces, err)
	}

	kubectl := patcher.NewKubectl(cfg.Kubectl, cfg.Kubeconfig)

	if lister == nil {
		switch cfg.NamespaceSource {
		case "", patcher.SourceCluster:
			lister = patcher.NewKubectlLister(kubectl, cfg.NamespaceSelector)
		default:
			return nil, errs.Wrapf(ErrUnknownNamespaces, cfg.NamespaceSource)
		}
	}

	return NewPatchers(services, patcher.NewKubectlApplier(kubectl), lister,
		patcher.WithParallelism(cfg.Parallelism),
		patcher.WithMetrics(m),
	)
}

func (l *Local) patcher(service string) (*patcher.Patcher, error) {
	p, ok := l.patchers[service]
	if !ok {
		return nil, errs.Wrapf(ErrUnknownService, service)
	}

	return p, nil
}

func (l *Local) Deploy(ctx context.Context, service, tenantID string) error {
	p, err := l.patcher(service)
	if err != nil {
		return err
	}

	return p.DeployTenant(ctx, tenantID)
}

// DeployAll re-applies service to every tenant namespace.
func (l *Local) DeployAll(ctx context.Context, service string) (patcher.Result, error) {
	p, err := l.patcher(service)
	if err != nil {
		return patcher.Result{Service: service}, err
	}

	return p.DeployAll(ctx)
}

// Services lists the services with a patcher in registration order.
func (l *Local) Services() []string {
	return append([]string(nil), l.order...)
}
