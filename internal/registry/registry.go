// Package registry is the system of record for tenant lifecycle state. Every
// mutation is a guarded compare-and-set, so concurrent duplicate deliveries of
// the same event can never both advance a tenant.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	multitenancy "github.com/bartventer/gorm-multitenancy/v8"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	"github.com/openkcm/tenant-lifecycle/internal/model"
	"github.com/openkcm/tenant-lifecycle/internal/repo"
	"github.com/openkcm/tenant-lifecycle/utils/base62"
)

// TenantRequest carries the onboarding attributes of a tenant.
type TenantRequest struct {
	TenantID    string
	CompanyName string
	AdminEmail  string
	Tier        string
}

// The tenant id names the tenant's namespace, so it must be a DNS-1123 label
// outside the namespaces kubernetes reserves.
const maxTenantIDLength = 63

var tenantIDPattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

var reservedTenantIDs = []string{"default", "kube-system", "kube-public", "kube-node-lease"}

func (r TenantRequest) Validate() error {
	switch {
	case r.TenantID == "":
		return errs.Wrapf(ErrInvalidRequest, "tenantId is required")
	case r.Tier == "":
		return errs.Wrapf(ErrInvalidRequest, "tier is required")
	default:
		return ValidateTenantID(r.TenantID)
	}
}

// ValidateTenantID rejects ids that cannot serve as a tenant namespace.
func ValidateTenantID(id string) error {
	switch {
	case len(id) > maxTenantIDLength:
		return errs.Wrapf(ErrInvalidRequest, fmt.Sprintf("tenantId must be at most %d characters", maxTenantIDLength))
	case !tenantIDPattern.MatchString(id):
		return errs.Wrapf(ErrInvalidRequest,
			"tenantId must consist of lowercase alphanumerics or '-' and start and end with an alphanumeric")
	case slices.Contains(reservedTenantIDs, id) || strings.HasPrefix(id, "kube-"):
		return errs.Wrapf(ErrInvalidRequest, "tenantId "+id+" is reserved")
	default:
		return nil
	}
}

type Option func(*Registry)

// WithClock replaces time.Now, mainly so tests can expire claims.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

type Registry struct {
	store repo.Store
	now   func() time.Time
}

func New(store repo.Store, opts ...Option) *Registry {
	r := &Registry{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// RequestProvisioning records a new tenant as REQUESTED. Repeating the request
// while the tenant is still REQUESTED is accepted, a tenant that failed
// provisioning re-enters REQUESTED, anything else is a duplicate.
func (r *Registry) RequestProvisioning(ctx context.Context, req TenantRequest) (*model.Tenant, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	schema, err := base62.EncodeSchemaName(req.TenantID)
	if err != nil {
		return nil, errs.Wrap(ErrInvalidRequest, err)
	}

	tenant := &model.Tenant{
		TenantModel: multitenancy.TenantModel{
			DomainURL:  req.TenantID,
			SchemaName: schema,
		},
		ID:          req.TenantID,
		CompanyName: req.CompanyName,
		AdminEmail:  req.AdminEmail,
		Tier:        req.Tier,
		Status:      model.TenantStatusRequested,
	}

	err = r.store.CreateTenant(ctx, tenant)
	if err == nil {
		log.Info(model.LogInjectTenant(ctx, tenant), "Tenant requested")
		return tenant, nil
	}

	if !errors.Is(err, repo.ErrUniqueConstraint) {
		return nil, err
	}

	existing, err := r.store.GetTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	switch {
	case existing.Status == model.TenantStatusRequested:
		return existing, nil
	case existing.Status == model.TenantStatusFailed && existing.FailedPhase == model.PhaseProvision:
		tenant, err := r.transition(ctx, req.TenantID, model.TransitionRequest, repo.TenantUpdate{})
		if err != nil {
			return nil, errs.Wrap(ErrDuplicateRequest, err)
		}

		log.Info(ctx, "Failed tenant requested again", slog.String("tenantId", req.TenantID))

		return tenant, nil
	default:
		return nil, errs.Wrapf(ErrDuplicateRequest, fmt.Sprintf("tenant %s is %s", existing.ID, existing.Status))
	}
}

// BeginProvisioning claims a REQUESTED tenant for the provisioning job until
// now+lease. A lapsed claim may be taken over by a later delivery.
func (r *Registry) BeginProvisioning(ctx context.Context, id string, lease time.Duration) (*model.Tenant, error) {
	until := r.now().Add(lease)

	return r.transition(ctx, id, model.TransitionBeginProvision, repo.TenantUpdate{ClaimedUntil: &until})
}

// MarkProvisioned moves a REQUESTED or PROVISIONING tenant to ACTIVE.
func (r *Registry) MarkProvisioned(ctx context.Context, id, tenantConfig string) (*model.Tenant, error) {
	tenant, err := r.transition(ctx, id, model.TransitionCompleteProvision, repo.TenantUpdate{
		TenantConfig: &tenantConfig,
	})
	if errors.Is(err, ErrInvalidState) {
		return nil, errs.Wrap(ErrUnknownTenant, err)
	}

	return tenant, err
}

// RequestDeprovisioning claims an ACTIVE tenant for the deprovisioning job.
// A tenant that failed deprovisioning, or whose claim lapsed, is accepted too.
func (r *Registry) RequestDeprovisioning(ctx context.Context, id string, lease time.Duration) (*model.Tenant, error) {
	until := r.now().Add(lease)

	return r.transition(ctx, id, model.TransitionBeginDeprovision, repo.TenantUpdate{ClaimedUntil: &until})
}

// MarkDeleted tombstones the tenant and purges its pooled rows.
func (r *Registry) MarkDeleted(ctx context.Context, id string) (*model.Tenant, error) {
	return r.transition(ctx, id, model.TransitionCompleteDeprovision, repo.TenantUpdate{PurgeResources: true})
}

// MarkFailed moves a tenant that is in progress of phase to FAILED.
func (r *Registry) MarkFailed(ctx context.Context, id string, phase model.Phase, reason string) (*model.Tenant, error) {
	err := phase.Validate()
	if err != nil {
		return nil, err
	}

	guard := model.Guard{
		Transition: model.TransitionFail,
		Target:     model.TenantStatusFailed,
		From:       []model.TenantStatus{phase.InProgress()},
	}

	return r.swap(ctx, id, guard, repo.TenantUpdate{
		Status:      model.TenantStatusFailed,
		FailedPhase: phase,
		LastError:   reason,
	})
}

// ReleaseClaim drops the claim of a tenant in progress of phase and keeps its
// status, so the same event can be re-triggered right away.
func (r *Registry) ReleaseClaim(ctx context.Context, id string, phase model.Phase, reason string) (*model.Tenant, error) {
	err := phase.Validate()
	if err != nil {
		return nil, err
	}

	status := phase.InProgress()

	return r.swap(ctx, id, model.StatusGuard(status), repo.TenantUpdate{
		Status:    status,
		LastError: reason,
	})
}

func (r *Registry) Get(ctx context.Context, id string) (*model.Tenant, error) {
	tenant, err := r.store.GetTenant(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, errs.Wrap(ErrUnknownTenant, err)
	}

	return tenant, err
}

func (r *Registry) List(ctx context.Context, filter repo.TenantFilter) ([]*model.Tenant, error) {
	return r.store.ListTenants(ctx, filter)
}

// CountByStatus returns the number of tenants per status.
func (r *Registry) CountByStatus(ctx context.Context) (map[model.TenantStatus]int, error) {
	return r.store.CountTenants(ctx)
}

// ListAll pages through every tenant matching statuses.
func (r *Registry) ListAll(ctx context.Context, statuses ...model.TenantStatus) ([]*model.Tenant, error) {
	var all []*model.Tenant

	for offset := 0; ; offset += repo.DefaultLimit {
		page, err := r.store.ListTenants(ctx, repo.TenantFilter{
			Statuses: statuses,
			Limit:    repo.DefaultLimit,
			Offset:   offset,
		})
		if err != nil {
			return nil, err
		}

		all = append(all, page...)

		if len(page) < repo.DefaultLimit {
			return all, nil
		}
	}
}

func (r *Registry) transition(
	ctx context.Context,
	id string,
	t model.Transition,
	update repo.TenantUpdate,
) (*model.Tenant, error) {
	guard, err := model.GuardFor(t)
	if err != nil {
		return nil, err
	}

	update.Status = guard.Target

	return r.swap(ctx, id, guard, update)
}

func (r *Registry) swap(
	ctx context.Context,
	id string,
	guard model.Guard,
	update repo.TenantUpdate,
) (*model.Tenant, error) {
	now := r.now()

	tenant, err := r.store.SwapTenant(ctx, id, guard, now, update)
	if err == nil {
		log.Debug(model.LogInjectTenant(ctx, tenant), "Tenant transitioned",
			slog.String("transition", guard.Transition.String()))

		return tenant, nil
	}

	if !errors.Is(err, repo.ErrConditionFailed) {
		return nil, err
	}

	return nil, r.explain(ctx, id, guard, now)
}

// explain turns a failed precondition into the error the caller acts on.
func (r *Registry) explain(ctx context.Context, id string, guard model.Guard, now time.Time) error {
	current, err := r.store.GetTenant(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return errs.Wrapf(ErrUnknownTenant, id)
	}

	if err != nil {
		return err
	}

	if slices.Contains(guard.Reclaim, current.Status) && !current.ClaimExpired(now) {
		return errs.Wrapf(ErrClaimHeld, fmt.Sprintf("tenant %s is %s until %s",
			id, current.Status, current.ClaimedUntil.Format(time.RFC3339)))
	}

	return errs.Wrapf(ErrInvalidState, fmt.Sprintf("tenant %s is %s", id, current.Status))
}
