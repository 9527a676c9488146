package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/event"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	"github.com/openkcm/tenant-lifecycle/internal/metrics"
	"github.com/openkcm/tenant-lifecycle/internal/model"
	"github.com/openkcm/tenant-lifecycle/internal/registry"
	"github.com/openkcm/tenant-lifecycle/internal/router"
)

const (
	defaultClaimGrace     = 30 * time.Second
	defaultPublishTries   = 5
	defaultPublishDelay   = 200 * time.Millisecond
	defaultPublishBackoff = 5 * time.Second
)

// Lifecycle is the part of the registry a runner drives.
type Lifecycle interface {
	Get(ctx context.Context, id string) (*model.Tenant, error)
	BeginProvisioning(ctx context.Context, id string, lease time.Duration) (*model.Tenant, error)
	MarkProvisioned(ctx context.Context, id, tenantConfig string) (*model.Tenant, error)
	RequestDeprovisioning(ctx context.Context, id string, lease time.Duration) (*model.Tenant, error)
	MarkDeleted(ctx context.Context, id string) (*model.Tenant, error)
	MarkFailed(ctx context.Context, id string, phase model.Phase, reason string) (*model.Tenant, error)
	ReleaseClaim(ctx context.Context, id string, phase model.Phase, reason string) (*model.Tenant, error)
}

var _ Lifecycle = (*registry.Registry)(nil)

type RunnerOption func(*Runner)

// WithClaimGrace extends the claim lease beyond the job timeout.
func WithClaimGrace(grace time.Duration) RunnerOption {
	return func(r *Runner) {
		r.claimGrace = grace
	}
}

func WithMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithCredential sets the cluster credential path handed to every run.
func WithCredential(path string) RunnerOption {
	return func(r *Runner) {
		r.credential = path
	}
}

func WithPublishRetry(attempts uint, delay time.Duration) RunnerOption {
	return func(r *Runner) {
		r.publishTries = attempts
		r.publishDelay = delay
	}
}

// Runner executes one job for every delivery of its trigger and walks the
// tenant through the registry transitions of the job's phase.
type Runner struct {
	desc      JobDescriptor
	executor  Executor
	lifecycle Lifecycle
	publisher router.Publisher

	metrics      *metrics.Metrics
	credential   string
	claimGrace   time.Duration
	publishTries uint
	publishDelay time.Duration
}

var _ router.Consumer = (*Runner)(nil)

func NewRunner(
	desc JobDescriptor,
	executor Executor,
	lifecycle Lifecycle,
	publisher router.Publisher,
	opts ...RunnerOption,
) *Runner {
	r := &Runner{
		desc:         desc,
		executor:     executor,
		lifecycle:    lifecycle,
		publisher:    publisher,
		claimGrace:   defaultClaimGrace,
		publishTries: defaultPublishTries,
		publishDelay: defaultPublishDelay,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Runner) Descriptor() JobDescriptor {
	return r.desc
}

// Deadline is the longest one delivery may run, the job timeout plus the
// claim grace. A bus must not cut a delivery off before it.
func (r *Runner) Deadline() time.Duration {
	return r.desc.Timeout + r.claimGrace
}

// Consume runs the job for e. Duplicate deliveries are no-ops, failures are
// terminal so the bus does not run the job a second time.
func (r *Runner) Consume(ctx context.Context, e event.LifecycleEvent) error {
	ctx = log.InjectJob(ctx, r.desc.Name)
	ctx = log.InjectTenant(ctx, e.TenantID)

	inputs, err := pick(e.Field, r.desc.Inputs)
	if err != nil {
		return router.Terminal(errs.Wrap(ErrMissingInput, err))
	}

	if r.desc.Phase != model.PhaseNone {
		done, err := r.claim(ctx, e.TenantID)
		if err != nil || done {
			return err
		}
	}

	runID := uuid.NewString()
	ctx = log.InjectRun(ctx, runID)

	log.Info(ctx, "Running job")

	start := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, r.desc.Timeout)
	result, err := r.executor.Execute(jobCtx, Request{
		Job:        r.desc.Name,
		RunID:      runID,
		TenantID:   e.TenantID,
		Inputs:     inputs,
		Image:      r.desc.Image,
		Credential: r.credential,
	})
	timedOut := errors.Is(jobCtx.Err(), context.DeadlineExceeded)

	cancel()

	took := time.Since(start)

	// a delivery deadline set by the bus is a timeout as well, only a
	// cancellation means the worker is shutting down
	switch {
	case timedOut:
		return r.timeout(ctx, e.TenantID, took)
	case ctx.Err() != nil:
		return r.abort(ctx, e.TenantID, took)
	case err != nil:
		return r.fail(ctx, e.TenantID, took, err)
	}

	outputs, err := pick(func(name string) (string, bool) {
		v, ok := result.Outputs[name]
		if !ok {
			v, ok = result.Outputs[EnvName(name)]
		}

		return v, ok
	}, r.desc.Outputs)
	if err != nil {
		return r.fail(ctx, e.TenantID, took, errs.Wrap(ErrMissingOutput, err))
	}

	err = r.complete(ctx, e.TenantID, outputs)
	if err != nil {
		return err
	}

	r.metrics.JobFinished(r.desc.Name, metrics.LabelSuccess, took)
	log.Info(ctx, "Job finished", slog.Duration("took", took))

	return r.emit(ctx, e.TenantID, outputs)
}

// claim prechecks the tenant and takes the in-progress claim. done reports a
// delivery that has nothing left to do.
func (r *Runner) claim(ctx context.Context, tenantID string) (bool, error) {
	phase := r.desc.Phase

	tenant, err := r.lifecycle.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownTenant) {
			return true, router.Terminal(err)
		}

		return true, err
	}

	if tenant.Status == phase.Done() {
		r.noop(ctx, "Tenant already reached "+phase.Done().String())
		return true, nil
	}

	lease := r.Deadline()

	if phase == model.PhaseDeprovision {
		_, err = r.lifecycle.RequestDeprovisioning(ctx, tenantID, lease)
	} else {
		_, err = r.lifecycle.BeginProvisioning(ctx, tenantID, lease)
	}

	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, registry.ErrClaimHeld):
		r.noop(ctx, "Tenant is claimed by another delivery")
		return true, nil
	case errors.Is(err, registry.ErrInvalidState):
		// a concurrent delivery may have completed in between
		current, getErr := r.lifecycle.Get(ctx, tenantID)
		if getErr == nil && current.Status == phase.Done() {
			r.noop(ctx, "Tenant already reached "+phase.Done().String())
			return true, nil
		}

		return true, router.Terminal(err)
	case errors.Is(err, registry.ErrUnknownTenant):
		return true, router.Terminal(err)
	default:
		return true, err
	}
}

func (r *Runner) complete(ctx context.Context, tenantID string, outputs map[string]string) error {
	var err error

	switch r.desc.Phase {
	case model.PhaseProvision:
		_, err = r.lifecycle.MarkProvisioned(ctx, tenantID, outputs[event.FieldTenantConfig])
	case model.PhaseDeprovision:
		_, err = r.lifecycle.MarkDeleted(ctx, tenantID)
	default:
		return nil
	}

	if err == nil {
		return nil
	}

	log.Error(ctx, "Persisting job completion failed", err)

	if errors.Is(err, registry.ErrUnknownTenant) || errors.Is(err, registry.ErrInvalidState) {
		return router.Terminal(err)
	}

	// give the redelivery a chance to run the job again
	r.release(ctx, tenantID, "persisting completion failed: "+err.Error())

	return err
}

func (r *Runner) emit(ctx context.Context, tenantID string, outputs map[string]string) error {
	if r.desc.Emits == "" {
		return nil
	}

	out := event.New(r.desc.Emits, tenantID, outputs)

	err := retry.New(
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, event.ErrInvalidEvent)
		}),
		retry.Delay(r.publishDelay),
		retry.MaxDelay(defaultPublishBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.Attempts(r.publishTries),
		retry.LastErrorOnly(true),
	).Do(func() error {
		return r.publisher.Publish(ctx, out)
	})
	if err != nil {
		log.Error(ctx, "Publishing job outcome failed", err, slog.String("emits", r.desc.Emits.String()))
		return router.Terminal(errs.Wrap(ErrPublishFailed, err))
	}

	log.Debug(ctx, "Published job outcome", slog.String("emits", r.desc.Emits.String()))

	return nil
}

// timeout keeps the tenant in its in-progress status but drops the claim, so
// the same event can be re-triggered by hand.
func (r *Runner) timeout(ctx context.Context, tenantID string, took time.Duration) error {
	reason := fmt.Sprintf("job %s timed out after %s", r.desc.Name, r.desc.Timeout)

	r.metrics.JobFinished(r.desc.Name, metrics.LabelTimeout, took)
	log.Error(ctx, "Job timed out", ErrJobTimeout, slog.Duration("timeout", r.desc.Timeout))

	if r.desc.Phase != model.PhaseNone {
		r.release(context.WithoutCancel(ctx), tenantID, reason)
	}

	return router.Terminal(errs.Wrapf(ErrJobTimeout, reason))
}

func (r *Runner) fail(ctx context.Context, tenantID string, took time.Duration, cause error) error {
	r.metrics.JobFinished(r.desc.Name, metrics.LabelFailure, took)
	log.Error(ctx, "Job failed", cause)

	if r.desc.Phase != model.PhaseNone {
		_, err := r.lifecycle.MarkFailed(ctx, tenantID, r.desc.Phase, cause.Error())
		if err != nil {
			log.Error(ctx, "Marking tenant failed", err)
		}
	}

	return router.Terminal(errs.Wrap(ErrJobFailed, cause))
}

// abort handles a worker shutdown mid-run. The claim is dropped and the
// error stays retryable so the bus hands the event to the next worker.
func (r *Runner) abort(ctx context.Context, tenantID string, took time.Duration) error {
	r.metrics.JobFinished(r.desc.Name, metrics.LabelFailure, took)
	log.Warn(ctx, "Job aborted")

	if r.desc.Phase != model.PhaseNone {
		r.release(context.WithoutCancel(ctx), tenantID, "job aborted")
	}

	return errs.Wrap(ErrJobAborted, ctx.Err())
}

func (r *Runner) release(ctx context.Context, tenantID, reason string) {
	_, err := r.lifecycle.ReleaseClaim(ctx, tenantID, r.desc.Phase, reason)
	if err != nil {
		log.Error(ctx, "Releasing tenant claim failed", err)
	}
}

func (r *Runner) noop(ctx context.Context, reason string) {
	r.metrics.JobFinished(r.desc.Name, metrics.LabelNoop, 0)
	log.Info(ctx, "Skipping duplicate delivery", slog.String("reason", reason))
}

// pick reads exactly the named fields through get.
func pick(get func(string) (string, bool), names []string) (map[string]string, error) {
	values := make(map[string]string, len(names))

	var missing []string

	for _, name := range names {
		v, ok := get(name)
		if !ok || v == "" {
			missing = append(missing, name)
			continue
		}

		values[name] = v
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%v", missing)
	}

	return values, nil
}
