// Package patcher renders a service's YAML template for a tenant and applies
// it into that tenant's namespace, either for one tenant or for all of them.
package patcher

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/openkcm/tenant-lifecycle/internal/constants"
	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/fanout"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	"github.com/openkcm/tenant-lifecycle/internal/metrics"
)

const defaultParallelism = 4

type Option func(*Patcher)

func WithParallelism(n int) Option {
	return func(p *Patcher) {
		if n > 0 {
			p.parallelism = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Patcher) {
		p.metrics = m
	}
}

// Patcher deploys one service.
type Patcher struct {
	service     fanout.ServiceRegistration
	template    *Template
	applier     Applier
	lister      NamespaceLister
	parallelism int
	metrics     *metrics.Metrics
}

func New(
	service fanout.ServiceRegistration,
	template *Template,
	applier Applier,
	lister NamespaceLister,
	opts ...Option,
) *Patcher {
	p := &Patcher{
		service:     service,
		template:    template,
		applier:     applier,
		lister:      lister,
		parallelism: defaultParallelism,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *Patcher) Service() fanout.ServiceRegistration {
	return p.service
}

// Patch renders the service for tenantID without applying it.
func (p *Patcher) Patch(tenantID string) (NamespacePatch, error) {
	return BuildPatch(p.service, p.template, tenantID)
}

// DeployTenant applies the service into the namespace of tenantID and no
// other.
func (p *Patcher) DeployTenant(ctx context.Context, tenantID string) error {
	patch, err := p.Patch(tenantID)
	if err != nil {
		return err
	}

	return p.apply(ctx, patch)
}

func (p *Patcher) apply(ctx context.Context, patch NamespacePatch) error {
	ctx = log.InjectService(ctx, p.service.Name)

	err := p.applier.Apply(ctx, patch.Namespace, patch.Resources)
	if err != nil {
		p.metrics.NamespaceApplied(p.service.Name, metrics.LabelFailure)
		return err
	}

	p.metrics.NamespaceApplied(p.service.Name, metrics.LabelSuccess)
	log.Info(ctx, "Applied namespace patch",
		slog.String(constants.LogKeyNamespace, patch.Namespace),
		slog.String("routePath", patch.RoutePath),
		slog.Int("resources", len(patch.Resources)),
	)

	return nil
}

// Result is the outcome of a global deploy.
type Result struct {
	Service    string
	Namespaces int
	Applied    []string
	Failed     []*NamespaceApplyFailure
}

// DeployAll re-applies the service into every discovered tenant namespace.
// A failing namespace does not stop the others. The returned error is nil
// only if every namespace was applied, including when there is none.
func (p *Patcher) DeployAll(ctx context.Context) (Result, error) {
	ctx = log.InjectService(ctx, p.service.Name)

	namespaces, err := p.lister.Namespaces(ctx)
	if err != nil {
		return Result{Service: p.service.Name}, err
	}

	res := Result{Service: p.service.Name, Namespaces: len(namespaces)}

	if len(namespaces) == 0 {
		log.Info(ctx, "No tenant namespaces to deploy")
		return res, nil
	}

	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.parallelism)

	for _, ns := range namespaces {
		eg.Go(func() error {
			err := p.DeployTenant(egCtx, ns)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				failure := &NamespaceApplyFailure{Service: p.service.Name, Namespace: ns, Err: err}
				res.Failed = append(res.Failed, failure)

				log.Error(ctx, "Namespace apply failed", failure,
					slog.String(constants.LogKeyNamespace, ns))

				return nil
			}

			res.Applied = append(res.Applied, ns)

			return nil
		})
	}

	_ = eg.Wait()

	slices.Sort(res.Applied)
	slices.SortFunc(res.Failed, func(a, b *NamespaceApplyFailure) int {
		return strings.Compare(a.Namespace, b.Namespace)
	})

	log.Info(ctx, "Global deploy finished",
		slog.Int("namespaces", res.Namespaces),
		slog.Int("applied", len(res.Applied)),
		slog.Int("failed", len(res.Failed)),
	)

	if len(res.Failed) == 0 {
		return res, nil
	}

	var combined error
	for _, f := range res.Failed {
		combined = multierr.Append(combined, f)
	}

	return res, errs.Wrap(ErrGlobalDeployIncomplete, combined)
}
