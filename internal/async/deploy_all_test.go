package async_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/tenant-lifecycle/internal/async"
)

type deployAllFunc func(ctx context.Context, service string) error

func (f deployAllFunc) DeployAll(ctx context.Context, service string) error { return f(ctx, service) }

func TestDeployAllTask(t *testing.T) {
	var services []string

	handler := async.NewDeployAll(deployAllFunc(func(_ context.Context, service string) error {
		services = append(services, service)
		return nil
	}))

	task, err := async.NewDeployAllTask("products")
	require.NoError(t, err)
	assert.Equal(t, handler.TaskType(), task.Type())

	require.NoError(t, handler.ProcessTask(t.Context(), task))
	assert.Equal(t, []string{"products"}, services)
}

func TestDeployAllTaskFailures(t *testing.T) {
	errBoom := errors.New("boom")

	handler := async.NewDeployAll(deployAllFunc(func(context.Context, string) error {
		return errBoom
	}))

	task, err := async.NewDeployAllTask("products")
	require.NoError(t, err)

	err = handler.ProcessTask(t.Context(), task)
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	err = handler.ProcessTask(t.Context(), asynq.NewTask(handler.TaskType(), []byte(`{}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	_, err = async.NewDeployAllTask("")
	assert.ErrorIs(t, err, async.ErrInvalidPayload)
}
