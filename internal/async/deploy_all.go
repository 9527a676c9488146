package async

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/log"
)

// GlobalDeployer re-applies one service to every tenant namespace.
type GlobalDeployer interface {
	DeployAll(ctx context.Context, service string) error
}

type DeployAllPayload struct {
	Service string `json:"service"`
}

// NewDeployAllTask builds the global deploy task of service.
func NewDeployAllTask(service string, opts ...asynq.Option) (*asynq.Task, error) {
	if service == "" {
		return nil, errs.Wrapf(ErrInvalidPayload, "service is required")
	}

	payload, err := json.Marshal(DeployAllPayload{Service: service})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(config.TypeDeployAll, payload, opts...), nil
}

type DeployAll struct {
	deployer GlobalDeployer
}

func NewDeployAll(deployer GlobalDeployer) *DeployAll {
	return &DeployAll{deployer: deployer}
}

func (d *DeployAll) TaskType() string {
	return config.TypeDeployAll
}

func (d *DeployAll) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ctx = log.InjectTask(ctx, task)

	var payload DeployAllPayload

	err := json.Unmarshal(task.Payload(), &payload)
	if err != nil || payload.Service == "" {
		log.Error(ctx, "Dropping global deploy task", ErrInvalidPayload)
		return errs.Wrap(asynq.SkipRetry, ErrInvalidPayload)
	}

	ctx = log.InjectService(ctx, payload.Service)

	err = d.deployer.DeployAll(ctx, payload.Service)
	if err != nil {
		log.Error(ctx, "Global deploy failed", err)
		return err
	}

	return nil
}
