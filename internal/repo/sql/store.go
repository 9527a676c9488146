package sql

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	multitenancy "github.com/bartventer/gorm-multitenancy/v8"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/model"
	"github.com/openkcm/tenant-lifecycle/internal/repo"
	"github.com/openkcm/tenant-lifecycle/internal/repo/violations"
)

// Store is the postgres backed registry store. Point reads go to the primary,
// listings may be served by replicas.
type Store struct {
	db *multitenancy.DB
}

var _ repo.Store = (*Store)(nil)

func NewStore(db *multitenancy.DB) *Store {
	return &Store{db: db}
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.DB.WithContext(ctx)
}

func (s *Store) CreateTenant(ctx context.Context, tenant *model.Tenant) error {
	err := s.conn(ctx).Create(tenant).Error
	if err != nil {
		return translate(err)
	}

	return nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	return getTenant(s.conn(ctx).Clauses(dbresolver.Write), id)
}

func (s *Store) ListTenants(ctx context.Context, filter repo.TenantFilter) ([]*model.Tenant, error) {
	q := s.conn(ctx).Model(&model.Tenant{}).Order("created_at, id")

	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = repo.DefaultLimit
	}

	var tenants []*model.Tenant

	err := q.Limit(limit).Offset(filter.Offset).Find(&tenants).Error
	if err != nil {
		return nil, translate(err)
	}

	return tenants, nil
}

func (s *Store) CountTenants(ctx context.Context) (map[model.TenantStatus]int, error) {
	var rows []struct {
		Status model.TenantStatus
		N      int
	}

	err := s.conn(ctx).Model(&model.Tenant{}).Select("status, count(*) AS n").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}

	counts := make(map[model.TenantStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}

	return counts, nil
}

func (s *Store) SwapTenant(
	ctx context.Context,
	id string,
	guard model.Guard,
	now time.Time,
	update repo.TenantUpdate,
) (*model.Tenant, error) {
	var swapped *model.Tenant

	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		where, args := guardClause(guard, now)

		res := tx.Model(&model.Tenant{}).
			Where("id = ?", id).
			Where(where, args...).
			Updates(update.Columns(now))
		if res.Error != nil {
			return translate(res.Error)
		}

		if res.RowsAffected == 0 {
			return repo.ErrConditionFailed
		}

		if update.PurgeResources {
			err := tx.Where("tenant_id = ?", id).Delete(&model.TenantResource{}).Error
			if err != nil {
				return translate(err)
			}
		}

		var err error

		swapped, err = getTenant(tx, id)

		return err
	})
	if err != nil {
		return nil, err
	}

	return swapped, nil
}

func (s *Store) UpsertDeployment(ctx context.Context, deployment *model.ServiceDeployment) error {
	deployment.Touch(time.Now().UTC())

	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "service"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_error", "updated_at"}),
	}).Create(deployment).Error
	if err != nil {
		return translate(err)
	}

	return nil
}

func (s *Store) ListDeployments(ctx context.Context, tenantID string) ([]*model.ServiceDeployment, error) {
	var deployments []*model.ServiceDeployment

	err := s.conn(ctx).Where("tenant_id = ?", tenantID).Order("service").Find(&deployments).Error
	if err != nil {
		return nil, translate(err)
	}

	return deployments, nil
}

func (s *Store) PutResource(ctx context.Context, resource *model.TenantResource) error {
	if resource.TenantID == "" {
		return repo.ErrMissingTenant
	}

	resource.Touch(time.Now().UTC())

	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "resource_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "data", "updated_at"}),
	}).Create(resource).Error
	if err != nil {
		return translate(err)
	}

	return nil
}

func (s *Store) GetResource(ctx context.Context, tenantID string, id uuid.UUID) (*model.TenantResource, error) {
	if tenantID == "" {
		return nil, repo.ErrMissingTenant
	}

	var resource model.TenantResource

	err := s.conn(ctx).Where("tenant_id = ? AND resource_id = ?", tenantID, id).First(&resource).Error
	if err != nil {
		return nil, translate(err)
	}

	return &resource, nil
}

func (s *Store) ListResources(ctx context.Context, tenantID string) ([]*model.TenantResource, error) {
	if tenantID == "" {
		return nil, repo.ErrMissingTenant
	}

	var resources []*model.TenantResource

	err := s.conn(ctx).Where("tenant_id = ?", tenantID).Order("created_at, resource_id").Find(&resources).Error
	if err != nil {
		return nil, translate(err)
	}

	return resources, nil
}

func (s *Store) DeleteResource(ctx context.Context, tenantID string, id uuid.UUID) error {
	if tenantID == "" {
		return repo.ErrMissingTenant
	}

	res := s.conn(ctx).Where("tenant_id = ? AND resource_id = ?", tenantID, id).Delete(&model.TenantResource{})
	if res.Error != nil {
		return translate(res.Error)
	}

	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}

	return nil
}

func getTenant(db *gorm.DB, id string) (*model.Tenant, error) {
	var tenant model.Tenant

	err := db.Where("id = ?", id).First(&tenant).Error
	if err != nil {
		return nil, translate(err)
	}

	return &tenant, nil
}

// guardClause renders the guard as a single parenthesised condition.
func guardClause(guard model.Guard, now time.Time) (string, []any) {
	var (
		parts []string
		args  []any
		plain []model.TenantStatus
	)

	for _, status := range guard.From {
		if status == model.TenantStatusFailed && guard.RetryPhase != model.PhaseNone {
			parts = append(parts, "(status = ? AND failed_phase = ?)")
			args = append(args, status, guard.RetryPhase)

			continue
		}

		plain = append(plain, status)
	}

	if len(plain) > 0 {
		parts = append(parts, "status IN ?")
		args = append(args, plain)
	}

	if len(guard.Reclaim) > 0 {
		parts = append(parts, "(status IN ? AND (claimed_until IS NULL OR claimed_until <= ?))")
		args = append(args, guard.Reclaim, now)
	}

	if len(parts) == 0 {
		return "1 = 0", nil
	}

	return "(" + strings.Join(parts, " OR ") + ")", args
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errs.Wrap(repo.ErrNotFound, err)
	case violations.IsUniqueConstraint(err):
		return errs.Wrap(repo.ErrUniqueConstraint, err)
	default:
		return err
	}
}
