package registry

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/model"
	"github.com/openkcm/tenant-lifecycle/internal/repo"
	ctxutils "github.com/openkcm/tenant-lifecycle/utils/context"
)

// Resources is the tenant-scoped view of the pooled table. The tenant always
// comes from the request context, there is no way to address another tenant.
type Resources struct {
	store repo.ResourceStore
}

func (r *Registry) Resources() *Resources {
	return &Resources{store: r.store}
}

// Put stores a new resource of kind. data must be a JSON document.
func (r *Resources) Put(ctx context.Context, kind string, data json.RawMessage) (*model.TenantResource, error) {
	tenantID, err := ctxutils.ExtractTenantID(ctx)
	if err != nil {
		return nil, err
	}

	switch {
	case kind == "":
		return nil, errs.Wrapf(ErrInvalidRequest, "resource kind is required")
	case len(data) == 0 || !json.Valid(data):
		return nil, errs.Wrapf(ErrInvalidRequest, "resource data must be a JSON document")
	}

	resource := &model.TenantResource{
		TenantID:   tenantID,
		ResourceID: uuid.New(),
		Kind:       kind,
		Data:       data,
	}

	err = r.store.PutResource(ctx, resource)
	if err != nil {
		return nil, err
	}

	return resource, nil
}

func (r *Resources) Get(ctx context.Context, id uuid.UUID) (*model.TenantResource, error) {
	tenantID, err := ctxutils.ExtractTenantID(ctx)
	if err != nil {
		return nil, err
	}

	return r.store.GetResource(ctx, tenantID, id)
}

func (r *Resources) List(ctx context.Context) ([]*model.TenantResource, error) {
	tenantID, err := ctxutils.ExtractTenantID(ctx)
	if err != nil {
		return nil, err
	}

	return r.store.ListResources(ctx, tenantID)
}

func (r *Resources) Delete(ctx context.Context, id uuid.UUID) error {
	tenantID, err := ctxutils.ExtractTenantID(ctx)
	if err != nil {
		return err
	}

	return r.store.DeleteResource(ctx, tenantID, id)
}
