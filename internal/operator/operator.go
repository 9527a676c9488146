// Package operator is the deploy agent. It answers deploy tasks sent over
// orbital by applying the service template to the tenant namespace.
package operator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openkcm/orbital"
	"github.com/samber/oops"

	"github.com/openkcm/tenant-lifecycle/internal/deploy"
	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/fanout"
	"github.com/openkcm/tenant-lifecycle/internal/log"
)

const (
	reconcileAfterSecProcessing uint64 = 3
	reconcileAfterSecError      uint64 = 15

	operatorComponent       = "operator"
	msgRegisteringHandler   = "registering handler"
	msgInitializingOperator = "initializing operator"

	WorkingStateDeployed             = "deployed successfully"
	WorkingStateUnmarshallingFailed  = "failed to unmarshal data"
	WorkingStateServiceMismatch      = "task sent to the wrong service"
	WorkingStateNamespacePending     = "waiting for tenant namespace"
	WorkingStateNamespaceCheckFailed = "namespace check failed"
	WorkingStateDeployFailed         = "deploy failed"
)

type Option func(*DeployAgent)

// WithNamespaceCheck holds deploys back until the tenant namespace exists.
func WithNamespaceCheck(check *NamespaceCheck) Option {
	return func(a *DeployAgent) {
		a.namespaces = check
	}
}

type DeployAgent struct {
	operatorTarget orbital.TargetOperator
	deployer       fanout.Deployer
	services       []string
	namespaces     *NamespaceCheck
}

func NewDeployAgent(
	operatorTarget orbital.TargetOperator,
	deployer fanout.Deployer,
	services []string,
	opts ...Option,
) (*DeployAgent, error) {
	if operatorTarget.Client == nil {
		return nil, oops.Errorf("operator target client is nil")
	}

	if deployer == nil {
		return nil, ErrNilDeployer
	}

	if len(services) == 0 {
		return nil, ErrNoServices
	}

	a := &DeployAgent{
		operatorTarget: operatorTarget,
		deployer:       deployer,
		services:       services,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// RunOperator registers a deploy handler per service and answers tasks until
// ctx is cancelled.
func (a *DeployAgent) RunOperator(ctx context.Context) error {
	operator, err := orbital.NewOperator(a.operatorTarget)
	if err != nil {
		return oops.In(operatorComponent).
			Wrapf(err, msgInitializingOperator)
	}

	for _, service := range a.services {
		taskType := deploy.TaskType(service)

		err = operator.RegisterHandler(taskType, a.injectTask(a.handlerFor(service)))
		if err != nil {
			return oops.In(operatorComponent).
				With("taskType", taskType).
				Wrapf(err, msgRegisteringHandler)
		}
	}

	log.Info(ctx, "Deploy agent is running and waiting for deploy tasks", slog.Any("services", a.services))

	go operator.ListenAndRespond(ctx)

	<-ctx.Done()
	log.Info(ctx, "Shutting down deploy agent due to context cancellation")

	return nil
}

func (a *DeployAgent) handlerFor(service string) orbital.Handler {
	return func(ctx context.Context, req orbital.HandlerRequest, resp *orbital.HandlerResponse) error {
		return a.handleDeploy(ctx, service, req, resp)
	}
}

func (a *DeployAgent) handleDeploy(
	ctx context.Context,
	service string,
	req orbital.HandlerRequest,
	resp *orbital.HandlerResponse,
) error {
	task, err := deploy.DecodeDeployTask(req.Data)
	if err != nil {
		return newHandlerResponse(ctx, WorkingStateUnmarshallingFailed, orbital.ResultFailed, resp, err)
	}

	if task.Service != service {
		err = errs.Wrapf(ErrServiceMismatch, fmt.Sprintf("%s sent to %s", task.Service, service))
		return newHandlerResponse(ctx, WorkingStateServiceMismatch, orbital.ResultFailed, resp, err)
	}

	ctx = log.InjectTenant(ctx, task.TenantID)

	if a.namespaces != nil {
		status, err := a.namespaces.Check(ctx, task.TenantID)
		if err != nil {
			return newHandlerResponse(ctx, WorkingStateNamespaceCheckFailed, orbital.ResultProcessing, resp, err)
		}

		if status == NamespaceNotFound {
			return newHandlerResponse(ctx, WorkingStateNamespacePending, orbital.ResultProcessing, resp,
				errs.Wrapf(ErrNamespaceNotFound, task.TenantID))
		}
	}

	err = a.deployer.Deploy(ctx, service, task.TenantID)
	if err != nil {
		return newHandlerResponse(ctx, WorkingStateDeployFailed, orbital.ResultFailed, resp, err)
	}

	log.Info(ctx, "Service deployed to tenant namespace")

	return newHandlerResponse(ctx, WorkingStateDeployed, orbital.ResultDone, resp, nil)
}

func (a *DeployAgent) injectTask(next orbital.Handler) orbital.Handler {
	return func(ctx context.Context, req orbital.HandlerRequest, resp *orbital.HandlerResponse) error {
		ctx = log.InjectOrbitalTask(ctx, req.TaskID.String(), req.Type)
		return next(ctx, req, resp)
	}
}

// newHandlerResponse fills resp for result. An error on a processing result is
// folded into the working state so orbital reconciles the task instead of
// failing it.
func newHandlerResponse(
	ctx context.Context,
	state string,
	result orbital.Result,
	resp *orbital.HandlerResponse,
	err error,
) error {
	reconcileAfter := reconcileAfterSecProcessing

	if err != nil {
		if result == orbital.ResultProcessing {
			log.Warn(ctx, "Deploy task not ready", log.ErrorAttr(err), slog.String("State", state))

			state = fmt.Sprintf("%s: %s", state, err.Error())
			reconcileAfter = reconcileAfterSecError
			err = nil
		} else {
			log.Error(ctx, "Deploy task failed", err, slog.String("State", state))
		}
	}

	if resp != nil {
		*resp = orbital.HandlerResponse{
			RawWorkingState:   []byte(state),
			Result:            result,
			ReconcileAfterSec: reconcileAfter,
		}
	} else {
		log.Warn(ctx, "Handler response is nil, cannot set the response", slog.String("State", state))
	}

	return err
}
