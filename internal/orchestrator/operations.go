package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/event"
	"github.com/openkcm/tenant-lifecycle/internal/fanout"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	"github.com/openkcm/tenant-lifecycle/internal/model"
	"github.com/openkcm/tenant-lifecycle/internal/patcher"
	"github.com/openkcm/tenant-lifecycle/internal/registry"
	"github.com/openkcm/tenant-lifecycle/internal/repo"
	ctxutils "github.com/openkcm/tenant-lifecycle/utils/context"
)

// Onboard records the tenant as REQUESTED and publishes its
// ONBOARDING_REQUEST. A tenant already mid-lifecycle is rejected with
// registry.ErrDuplicateRequest.
func (c *Core) Onboard(ctx context.Context, req registry.TenantRequest) (*model.Tenant, error) {
	ctx = log.InjectTenant(ctx, req.TenantID)

	err := onboardingRequest(&model.Tenant{
		ID:          req.TenantID,
		CompanyName: req.CompanyName,
		AdminEmail:  req.AdminEmail,
		Tier:        req.Tier,
	}).Validate()
	if err != nil {
		return nil, errs.Wrap(registry.ErrInvalidRequest, err)
	}

	tenant, err := c.registry.RequestProvisioning(ctx, req)
	if err != nil {
		return nil, err
	}

	err = c.router.Publish(ctx, onboardingRequest(tenant))
	if err != nil {
		return nil, err
	}

	log.Info(ctx, "Tenant onboarding requested", slog.String("tier", tenant.Tier))

	return tenant, nil
}

// Offboard publishes the OFFBOARDING_REQUEST of an ACTIVE tenant. A tenant
// whose deprovisioning failed or is still pending may be offboarded again.
func (c *Core) Offboard(ctx context.Context, tenantID string) (*model.Tenant, error) {
	ctx = log.InjectTenant(ctx, tenantID)

	tenant, err := c.registry.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if tenant.Status == model.TenantStatusFailed && tenant.FailedPhase != model.PhaseDeprovision {
		return nil, errs.Wrapf(registry.ErrInvalidState, "tenant "+tenantID+" failed provisioning")
	}

	err = requireStatus(tenant, model.TenantStatusActive, model.TenantStatusDeprovisioning, model.TenantStatusFailed)
	if err != nil {
		return nil, err
	}

	err = c.router.Publish(ctx, offboardingRequest(tenant))
	if err != nil {
		return nil, err
	}

	log.Info(ctx, "Tenant offboarding requested")

	return tenant, nil
}

// Retrigger re-publishes the event that drives the tenant's current
// lifecycle step, with the same idempotency key as the original. An ACTIVE
// tenant gets its deploy fan-out again, skipping services already deployed.
func (c *Core) Retrigger(ctx context.Context, tenantID string) (event.LifecycleEvent, error) {
	ctx = log.InjectTenant(ctx, tenantID)

	tenant, err := c.registry.Get(ctx, tenantID)
	if err != nil {
		return event.LifecycleEvent{}, err
	}

	var e event.LifecycleEvent

	switch {
	case tenant.Status == model.TenantStatusRequested, tenant.Status == model.TenantStatusProvisioning:
		e = onboardingRequest(tenant)
	case tenant.Status == model.TenantStatusFailed && tenant.FailedPhase == model.PhaseProvision:
		tenant, err = c.registry.RequestProvisioning(ctx, registry.TenantRequest{
			TenantID:    tenant.ID,
			CompanyName: tenant.CompanyName,
			AdminEmail:  tenant.AdminEmail,
			Tier:        tenant.Tier,
		})
		if err != nil {
			return event.LifecycleEvent{}, err
		}

		e = onboardingRequest(tenant)
	case tenant.Status == model.TenantStatusDeprovisioning, tenant.Status == model.TenantStatusFailed:
		e = offboardingRequest(tenant)
	case tenant.Status == model.TenantStatusActive:
		e = event.New(event.ProvisionSuccess, tenant.ID, map[string]string{
			event.FieldTenantConfig: tenant.TenantConfig,
			event.FieldTenantStatus: tenant.Status.String(),
		})
	default:
		return event.LifecycleEvent{}, errs.Wrapf(ErrNothingToRetrigger, "tenant "+tenantID+" is "+tenant.Status.String())
	}

	err = c.router.Publish(ctx, e)
	if err != nil {
		return event.LifecycleEvent{}, err
	}

	log.Info(ctx, "Lifecycle step re-triggered", slog.String("topic", e.Topic()))

	return e, nil
}

// TriggerDeploy publishes the DEPLOY_REQUEST of service for an ACTIVE tenant
// and returns without waiting for the deploy.
func (c *Core) TriggerDeploy(ctx context.Context, tenantID, service string) error {
	ctx = log.InjectService(log.InjectTenant(ctx, tenantID), service)

	_, err := c.activeTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.fanout.Trigger(ctx, tenantID, service)
}

// RunDeploy deploys service for an ACTIVE tenant and waits for the outcome,
// which is recorded like a triggered deploy.
func (c *Core) RunDeploy(ctx context.Context, tenantID, service string) error {
	_, err := c.services.Get(service)
	if err != nil {
		return err
	}

	_, err = c.activeTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	return fanout.RunDeploy(ctx, c.deployer, c.registry, service, tenantID)
}

// DeployAll re-applies service to every tenant namespace. It fails when any
// namespace failed, after all of them were attempted.
func (c *Core) DeployAll(ctx context.Context, service string) (patcher.Result, error) {
	_, err := c.services.Get(service)
	if err != nil {
		return patcher.Result{Service: service}, err
	}

	if c.global == nil {
		return patcher.Result{Service: service}, ErrGlobalDeployUnavailable
	}

	return c.global.DeployAll(ctx, service)
}

func (c *Core) Get(ctx context.Context, tenantID string) (*model.Tenant, error) {
	return c.registry.Get(ctx, tenantID)
}

func (c *Core) List(ctx context.Context, filter repo.TenantFilter) ([]*model.Tenant, error) {
	return c.registry.List(ctx, filter)
}

// Deployments returns the per-service deploy records of a tenant.
func (c *Core) Deployments(ctx context.Context, tenantID string) ([]*model.ServiceDeployment, error) {
	_, err := c.registry.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return c.registry.Deployments(ctx, tenantID)
}

// DegradedServices lists the services whose last deploy failed for the tenant.
func (c *Core) DegradedServices(ctx context.Context, tenantID string) ([]string, error) {
	return c.registry.DegradedServices(ctx, tenantID)
}

// PutResource stores a pooled resource for the ACTIVE tenant ctx is scoped to.
func (c *Core) PutResource(ctx context.Context, kind string, data json.RawMessage) (*model.TenantResource, error) {
	tenantID, err := ctxutils.ExtractTenantID(ctx)
	if err != nil {
		return nil, err
	}

	_, err = c.activeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	resource, err := c.registry.Resources().Put(ctx, kind, data)
	if err != nil {
		return nil, err
	}

	log.Debug(log.InjectTenant(ctx, tenantID), "Stored tenant resource",
		slog.String("resourceId", resource.ResourceID.String()), slog.String("kind", kind))

	return resource, nil
}

func (c *Core) GetResource(ctx context.Context, id uuid.UUID) (*model.TenantResource, error) {
	err := c.scopedTenant(ctx)
	if err != nil {
		return nil, err
	}

	return c.registry.Resources().Get(ctx, id)
}

func (c *Core) ListResources(ctx context.Context) ([]*model.TenantResource, error) {
	err := c.scopedTenant(ctx)
	if err != nil {
		return nil, err
	}

	return c.registry.Resources().List(ctx)
}

func (c *Core) DeleteResource(ctx context.Context, id uuid.UUID) error {
	err := c.scopedTenant(ctx)
	if err != nil {
		return err
	}

	return c.registry.Resources().Delete(ctx, id)
}

// scopedTenant checks that the tenant ctx is scoped to exists.
func (c *Core) scopedTenant(ctx context.Context) error {
	tenantID, err := ctxutils.ExtractTenantID(ctx)
	if err != nil {
		return err
	}

	_, err = c.registry.Get(ctx, tenantID)

	return err
}

func (c *Core) activeTenant(ctx context.Context, tenantID string) (*model.Tenant, error) {
	tenant, err := c.registry.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return tenant, requireStatus(tenant, model.TenantStatusActive)
}

func onboardingRequest(t *model.Tenant) event.LifecycleEvent {
	return event.New(event.OnboardingRequest, t.ID, map[string]string{
		event.FieldTier:         t.Tier,
		event.FieldTenantName:   t.CompanyName,
		event.FieldEmail:        t.AdminEmail,
		event.FieldTenantStatus: model.TenantStatusRequested.String(),
	})
}

func offboardingRequest(t *model.Tenant) event.LifecycleEvent {
	return event.New(event.OffboardingRequest, t.ID, map[string]string{
		event.FieldTier: t.Tier,
	})
}
