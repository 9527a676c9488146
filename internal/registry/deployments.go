package registry

import (
	"context"

	"github.com/openkcm/tenant-lifecycle/internal/model"
)

// RecordDeployment stores the latest deploy outcome of service for the tenant.
// It never touches the tenant status.
func (r *Registry) RecordDeployment(
	ctx context.Context,
	tenantID, service string,
	status model.DeploymentStatus,
	reason string,
) error {
	return r.store.UpsertDeployment(ctx, &model.ServiceDeployment{
		TenantID:  tenantID,
		Service:   service,
		Status:    status,
		LastError: reason,
	})
}

func (r *Registry) Deployments(ctx context.Context, tenantID string) ([]*model.ServiceDeployment, error) {
	return r.store.ListDeployments(ctx, tenantID)
}

// DegradedServices lists the services whose last deploy for the tenant failed.
func (r *Registry) DegradedServices(ctx context.Context, tenantID string) ([]string, error) {
	deployments, err := r.store.ListDeployments(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var degraded []string

	for _, d := range deployments {
		if d.Status == model.DeploymentFailed {
			degraded = append(degraded, d.Service)
		}
	}

	return degraded, nil
}
