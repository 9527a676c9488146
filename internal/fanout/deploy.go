package fanout

import (
	"context"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/event"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	"github.com/openkcm/tenant-lifecycle/internal/model"
	"github.com/openkcm/tenant-lifecycle/internal/router"
)

// Deployer runs the deploy of one service for one tenant.
type Deployer interface {
	Deploy(ctx context.Context, service, tenantID string) error
}

type DeployerFunc func(ctx context.Context, service, tenantID string) error

func (f DeployerFunc) Deploy(ctx context.Context, service, tenantID string) error {
	return f(ctx, service, tenantID)
}

// DeployConsumer handles DEPLOY_REQUEST:<service>. The tenant status is
// never changed, a failed deploy only degrades the tenant.
type DeployConsumer struct {
	service     string
	deployer    Deployer
	deployments Deployments
}

var _ router.Consumer = (*DeployConsumer)(nil)

func NewDeployConsumer(service string, deployer Deployer, deployments Deployments) *DeployConsumer {
	return &DeployConsumer{service: service, deployer: deployer, deployments: deployments}
}

// Consume deploys only while the tenant is ACTIVE.
func (c *DeployConsumer) Consume(ctx context.Context, e event.LifecycleEvent) error {
	ok, err := active(log.InjectService(log.InjectTenant(ctx, e.TenantID), c.service), c.deployments, e.TenantID)
	if !ok {
		return err
	}

	return RunDeploy(ctx, c.deployer, c.deployments, c.service, e.TenantID)
}

// RunDeploy deploys service for tenantID and records the outcome. A failed
// deploy is terminal, a failed recording is not.
func RunDeploy(ctx context.Context, deployer Deployer, deployments Deployments, service, tenantID string) error {
	ctx = log.InjectService(log.InjectTenant(ctx, tenantID), service)

	deployErr := deployer.Deploy(ctx, service, tenantID)

	status, reason := model.DeploymentSucceeded, ""
	if deployErr != nil {
		status, reason = model.DeploymentFailed, deployErr.Error()
		log.Error(ctx, "Service deploy failed", deployErr)
	} else {
		log.Info(ctx, "Service deployed")
	}

	err := deployments.RecordDeployment(ctx, tenantID, service, status, reason)
	if err != nil {
		return errs.Wrap(ErrRecordingDeployRun, err)
	}

	if deployErr != nil {
		return router.Terminal(errs.Wrap(ErrDeployFailed, deployErr))
	}

	return nil
}
