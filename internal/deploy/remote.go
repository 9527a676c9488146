package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/orbital"
	"github.com/openkcm/orbital/client/amqp"
	"github.com/openkcm/orbital/codec"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/event"
	"github.com/openkcm/tenant-lifecycle/internal/fanout"
	"github.com/openkcm/tenant-lifecycle/internal/log"
)

const defaultReconcileUnit = time.Second

// DeployTask is the payload of a deploy task sent to the deploy agent.
type DeployTask struct {
	TenantID string `json:"tenantId"`
	Service  string `json:"service"`
}

func (t DeployTask) Validate() error {
	switch {
	case t.TenantID == "":
		return errs.Wrapf(ErrInvalidTask, "tenantId is required")
	case t.Service == "":
		return errs.Wrapf(ErrInvalidTask, "service is required")
	default:
		return nil
	}
}

func DecodeDeployTask(data []byte) (DeployTask, error) {
	var task DeployTask

	err := json.Unmarshal(data, &task)
	if err != nil {
		return DeployTask{}, errs.Wrap(ErrInvalidTask, err)
	}

	return task, task.Validate()
}

// TaskType is the orbital task type the agent registers for service.
func TaskType(service string) string {
	return event.Topic(event.DeployRequest, service)
}

// Initiator is the sending side of an orbital task exchange.
type Initiator interface {
	SendTaskRequest(ctx context.Context, req orbital.TaskRequest) error
	ReceiveTaskResponse(ctx context.Context) (orbital.TaskResponse, error)
}

type RemoteOption func(*RemoteDeployer)

// WithReconcileUnit scales ReconcileAfterSec of processing responses.
func WithReconcileUnit(unit time.Duration) RemoteOption {
	return func(r *RemoteDeployer) {
		r.unit = unit
	}
}

// RemoteDeployer hands deploys to a deploy agent and waits for the outcome.
type RemoteDeployer struct {
	client Initiator
	unit   time.Duration

	mu      sync.Mutex
	pending map[uuid.UUID]chan orbital.TaskResponse
	stopped bool
}

var _ fanout.Deployer = (*RemoteDeployer)(nil)

func NewRemoteDeployer(client Initiator, opts ...RemoteOption) *RemoteDeployer {
	r := &RemoteDeployer{
		client:  client,
		unit:    defaultReconcileUnit,
		pending: make(map[uuid.UUID]chan orbital.TaskResponse),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// NewAMQPClient connects to the deploy broker as configured. The orchestrator
// and the deploy agent use it with mirrored target and source addresses.
func NewAMQPClient(ctx context.Context, cfg config.DeployAgent) (*amqp.Client, error) {
	var opts []amqp.ClientOption

	if cfg.SecretRef.Type == commoncfg.MTLSSecretType {
		opts = append(opts, WithMTLS(cfg.SecretRef.MTLS))
	}

	return amqp.NewClient(ctx, &codec.Proto{}, amqp.ConnectionInfo{
		URL:    cfg.AMQP.URL,
		Target: cfg.AMQP.Target,
		Source: cfg.AMQP.Source,
	}, opts...)
}

// Start receives task responses until ctx is done and routes them to the
// waiting deploys.
func (r *RemoteDeployer) Start(ctx context.Context) error {
	defer r.stop()

	for {
		resp, err := r.client.ReceiveTaskResponse(ctx)
		if ctx.Err() != nil {
			return nil //nolint:nilerr
		}

		if err != nil {
			log.Error(ctx, "Receiving deploy task response failed", err)
			return err
		}

		r.mu.Lock()
		ch, ok := r.pending[resp.TaskID]
		r.mu.Unlock()

		if !ok {
			log.Warn(ctx, "Dropping response of unknown deploy task", slog.String("taskId", resp.TaskID.String()))
			continue
		}

		select {
		case ch <- resp:
		default:
			log.Warn(ctx, "Dropping duplicate deploy task response", slog.String("taskId", resp.TaskID.String()))
		}
	}
}

func (r *RemoteDeployer) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true

	for id, ch := range r.pending {
		close(ch)
		delete(r.pending, id)
	}
}

// Deploy sends a deploy task and blocks until the agent reports it done or
// failed, resending while the agent reports processing.
func (r *RemoteDeployer) Deploy(ctx context.Context, service, tenantID string) error {
	task := DeployTask{TenantID: tenantID, Service: service}

	err := task.Validate()
	if err != nil {
		return err
	}

	data, err := json.Marshal(task)
	if err != nil {
		return errs.Wrap(ErrInvalidTask, err)
	}

	req := orbital.TaskRequest{
		TaskID: uuid.New(),
		Type:   TaskType(service),
		Data:   data,
	}

	ch, err := r.register(req.TaskID)
	if err != nil {
		return err
	}
	defer r.unregister(req.TaskID)

	ctx = log.InjectOrbitalTask(ctx, req.TaskID.String(), req.Type)

	for {
		err = r.client.SendTaskRequest(ctx, req)
		if err != nil {
			return err
		}

		var resp orbital.TaskResponse

		select {
		case <-ctx.Done():
			return ctx.Err()
		case got, ok := <-ch:
			if !ok {
				return ErrDeployerStopped
			}

			resp = got
		}

		switch resp.Status {
		case string(orbital.TaskStatusDone):
			log.Debug(ctx, "Remote deploy done")
			return nil
		case string(orbital.TaskStatusFailed):
			return errs.Wrapf(ErrRemoteDeployFailed, resp.ErrorMessage)
		}

		log.Debug(ctx, "Remote deploy in progress",
			slog.String("workingState", string(resp.WorkingState)),
			slog.Uint64("reconcileAfterSec", resp.ReconcileAfterSec))

		req.WorkingState = resp.WorkingState
		req.ETag = resp.ETag

		wait := time.Duration(resp.ReconcileAfterSec) * r.unit

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (r *RemoteDeployer) register(id uuid.UUID) (chan orbital.TaskResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil, ErrDeployerStopped
	}

	ch := make(chan orbital.TaskResponse, 1)
	r.pending[id] = ch

	return ch, nil
}

func (r *RemoteDeployer) unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pending, id)
}

// IsRemoteFailure reports whether err came back from the agent rather than
// from the transport.
func IsRemoteFailure(err error) bool {
	return errors.Is(err, ErrRemoteDeployFailed)
}
