package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openkcm/tenant-lifecycle/internal/model"
)

var (
	ErrNotFound         = errors.New("resource not found")
	ErrUniqueConstraint = errors.New("unique constraint violation")
	ErrConditionFailed  = errors.New("update precondition not met")
	ErrMissingTenant    = errors.New("pooled query without tenant")
)

const DefaultLimit = 100

// TenantFilter narrows ListTenants. Zero values match everything.
type TenantFilter struct {
	Statuses []model.TenantStatus
	Limit    int
	Offset   int
}

// TenantUpdate is the set of lifecycle columns written by a guarded swap.
type TenantUpdate struct {
	Status       model.TenantStatus
	FailedPhase  model.Phase
	LastError    string
	ClaimedUntil *time.Time
	// TenantConfig is only written when set.
	TenantConfig *string
	// PurgeResources removes the tenant's pooled rows in the same transaction.
	PurgeResources bool
}

// Apply writes the update onto t.
func (u TenantUpdate) Apply(t *model.Tenant, now time.Time) {
	t.Status = u.Status
	t.FailedPhase = u.FailedPhase
	t.LastError = u.LastError
	t.ClaimedUntil = u.ClaimedUntil

	if u.TenantConfig != nil {
		t.TenantConfig = *u.TenantConfig
	}

	t.Touch(now)
}

// Columns returns the update as a gorm column map.
func (u TenantUpdate) Columns(now time.Time) map[string]any {
	cols := map[string]any{
		"status":        u.Status,
		"failed_phase":  u.FailedPhase,
		"last_error":    u.LastError,
		"claimed_until": u.ClaimedUntil,
		"updated_at":    now,
	}

	if u.TenantConfig != nil {
		cols["tenant_config"] = *u.TenantConfig
	}

	return cols
}

type TenantStore interface {
	CreateTenant(ctx context.Context, tenant *model.Tenant) error
	GetTenant(ctx context.Context, id string) (*model.Tenant, error)
	ListTenants(ctx context.Context, filter TenantFilter) ([]*model.Tenant, error)
	// CountTenants returns the number of tenants per status.
	CountTenants(ctx context.Context) (map[model.TenantStatus]int, error)
	// SwapTenant atomically applies update when the stored tenant satisfies
	// guard at now. It returns ErrConditionFailed otherwise.
	SwapTenant(
		ctx context.Context,
		id string,
		guard model.Guard,
		now time.Time,
		update TenantUpdate,
	) (*model.Tenant, error)
}

type DeploymentStore interface {
	UpsertDeployment(ctx context.Context, deployment *model.ServiceDeployment) error
	ListDeployments(ctx context.Context, tenantID string) ([]*model.ServiceDeployment, error)
}

// ResourceStore is the pooled table. Every call is scoped to one tenant.
type ResourceStore interface {
	PutResource(ctx context.Context, resource *model.TenantResource) error
	GetResource(ctx context.Context, tenantID string, id uuid.UUID) (*model.TenantResource, error)
	ListResources(ctx context.Context, tenantID string) ([]*model.TenantResource, error)
	DeleteResource(ctx context.Context, tenantID string, id uuid.UUID) error
}

type Store interface {
	TenantStore
	DeploymentStore
	ResourceStore
}
