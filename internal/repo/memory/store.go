package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/model"
	"github.com/openkcm/tenant-lifecycle/internal/repo"
)

type resourceKey struct {
	tenantID string
	id       uuid.UUID
}

type deploymentKey struct {
	tenantID string
	service  string
}

// Store keeps the registry in process. It backs tests and the local mode.
type Store struct {
	mu          sync.RWMutex
	tenants     map[string]*model.Tenant
	deployments map[deploymentKey]*model.ServiceDeployment
	resources   map[resourceKey]*model.TenantResource
}

var _ repo.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		tenants:     make(map[string]*model.Tenant),
		deployments: make(map[deploymentKey]*model.ServiceDeployment),
		resources:   make(map[resourceKey]*model.TenantResource),
	}
}

func (s *Store) CreateTenant(_ context.Context, tenant *model.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[tenant.ID]; ok {
		return errs.Wrapf(repo.ErrUniqueConstraint, tenant.ID)
	}

	tenant.Touch(time.Now().UTC())
	s.tenants[tenant.ID] = tenant.Clone()

	return nil
}

func (s *Store) GetTenant(_ context.Context, id string) (*model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, errs.Wrapf(repo.ErrNotFound, id)
	}

	return t.Clone(), nil
}

func (s *Store) CountTenants(_ context.Context) (map[model.TenantStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.TenantStatus]int)
	for _, t := range s.tenants {
		counts[t.Status]++
	}

	return counts, nil
}

func (s *Store) ListTenants(_ context.Context, filter repo.TenantFilter) ([]*model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := make([]*model.Tenant, 0, len(s.tenants))

	for _, t := range s.tenants {
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, t.Status) {
			continue
		}

		tenants = append(tenants, t.Clone())
	}

	slices.SortFunc(tenants, func(a, b *model.Tenant) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = repo.DefaultLimit
	}

	start := min(filter.Offset, len(tenants))
	end := min(start+limit, len(tenants))

	return tenants[start:end], nil
}

func (s *Store) SwapTenant(
	_ context.Context,
	id string,
	guard model.Guard,
	now time.Time,
	update repo.TenantUpdate,
) (*model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[id]
	if !ok || !guard.Allows(t, now) {
		return nil, repo.ErrConditionFailed
	}

	update.Apply(t, now)

	if update.PurgeResources {
		for key := range s.resources {
			if key.tenantID == id {
				delete(s.resources, key)
			}
		}
	}

	return t.Clone(), nil
}

func (s *Store) UpsertDeployment(_ context.Context, deployment *model.ServiceDeployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := deploymentKey{tenantID: deployment.TenantID, service: deployment.Service}

	if existing, ok := s.deployments[key]; ok {
		deployment.CreatedAt = existing.CreatedAt
	}

	deployment.Touch(time.Now().UTC())

	d := *deployment
	s.deployments[key] = &d

	return nil
}

func (s *Store) ListDeployments(_ context.Context, tenantID string) ([]*model.ServiceDeployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var deployments []*model.ServiceDeployment

	for key, d := range s.deployments {
		if key.tenantID != tenantID {
			continue
		}

		c := *d
		deployments = append(deployments, &c)
	}

	slices.SortFunc(deployments, func(a, b *model.ServiceDeployment) int {
		return strings.Compare(a.Service, b.Service)
	})

	return deployments, nil
}

func (s *Store) PutResource(_ context.Context, resource *model.TenantResource) error {
	if resource.TenantID == "" {
		return repo.ErrMissingTenant
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := resourceKey{tenantID: resource.TenantID, id: resource.ResourceID}

	if existing, ok := s.resources[key]; ok {
		resource.CreatedAt = existing.CreatedAt
	}

	resource.Touch(time.Now().UTC())

	r := *resource
	r.Data = slices.Clone(resource.Data)
	s.resources[key] = &r

	return nil
}

func (s *Store) GetResource(_ context.Context, tenantID string, id uuid.UUID) (*model.TenantResource, error) {
	if tenantID == "" {
		return nil, repo.ErrMissingTenant
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resources[resourceKey{tenantID: tenantID, id: id}]
	if !ok {
		return nil, errs.Wrapf(repo.ErrNotFound, id.String())
	}

	c := *r

	return &c, nil
}

func (s *Store) ListResources(_ context.Context, tenantID string) ([]*model.TenantResource, error) {
	if tenantID == "" {
		return nil, repo.ErrMissingTenant
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var resources []*model.TenantResource

	for key, r := range s.resources {
		if key.tenantID != tenantID {
			continue
		}

		c := *r
		resources = append(resources, &c)
	}

	slices.SortFunc(resources, func(a, b *model.TenantResource) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ResourceID.String(), b.ResourceID.String())
	})

	return resources, nil
}

func (s *Store) DeleteResource(_ context.Context, tenantID string, id uuid.UUID) error {
	if tenantID == "" {
		return repo.ErrMissingTenant
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := resourceKey{tenantID: tenantID, id: id}
	if _, ok := s.resources[key]; !ok {
		return errs.Wrapf(repo.ErrNotFound, id.String())
	}

	delete(s.resources, key)

	return nil
}
