package deploy_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/tenant-lifecycle/internal/deploy"
	"github.com/openkcm/tenant-lifecycle/internal/testutils"
)

func startRemote(t *testing.T, agent deploy.Initiator, unit time.Duration) *deploy.RemoteDeployer {
	t.Helper()

	remote := deploy.NewRemoteDeployer(agent, deploy.WithReconcileUnit(unit))

	go func() {
		err := remote.Start(t.Context())
		assert.NoError(t, err)
	}()

	return remote
}

func TestRemoteDeploy(t *testing.T) {
	t.Run("should resend until the agent reports done", func(t *testing.T) {
		agent := testutils.NewTestDeployAgent(2, true)
		remote := startRemote(t, agent, time.Millisecond)

		err := remote.Deploy(t.Context(), "products", "t-100")
		require.NoError(t, err)

		requests := agent.Requests()
		require.Len(t, requests, 3)

		for _, req := range requests {
			assert.Equal(t, requests[0].TaskID, req.TaskID)
			assert.Equal(t, "DEPLOY_REQUEST:products", req.Type)
		}

		var task deploy.DeployTask
		require.NoError(t, json.Unmarshal(requests[0].Data, &task))
		assert.Equal(t, deploy.DeployTask{TenantID: "t-100", Service: "products"}, task)
	})

	t.Run("should return the agent failure", func(t *testing.T) {
		agent := testutils.NewTestDeployAgent(0, false)
		remote := startRemote(t, agent, time.Millisecond)

		err := remote.Deploy(t.Context(), "orders", "t-100")
		assert.ErrorIs(t, err, deploy.ErrRemoteDeployFailed)
		assert.True(t, deploy.IsRemoteFailure(err))
		assert.Contains(t, err.Error(), "simulated failure")
	})

	t.Run("should reject an incomplete task", func(t *testing.T) {
		agent := testutils.NewTestDeployAgent(0, true)
		remote := startRemote(t, agent, time.Millisecond)

		err := remote.Deploy(t.Context(), "orders", "")
		assert.ErrorIs(t, err, deploy.ErrInvalidTask)
		assert.Empty(t, agent.Requests())
	})

	t.Run("should give up when the context ends", func(t *testing.T) {
		agent := testutils.NewTestDeployAgent(10, true)
		remote := startRemote(t, agent, time.Hour)

		ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel()

		err := remote.Deploy(ctx, "orders", "t-100")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("should refuse deploys once stopped", func(t *testing.T) {
		agent := testutils.NewTestDeployAgent(0, true)
		remote := deploy.NewRemoteDeployer(agent)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		require.NoError(t, remote.Start(ctx))

		err := remote.Deploy(t.Context(), "orders", "t-100")
		assert.ErrorIs(t, err, deploy.ErrDeployerStopped)
	})
}

func TestDecodeDeployTask(t *testing.T) {
	task, err := deploy.DecodeDeployTask([]byte(`{"tenantId":"t-100","service":"products"}`))
	require.NoError(t, err)
	assert.Equal(t, "t-100", task.TenantID)

	_, err = deploy.DecodeDeployTask([]byte(`{"tenantId":"t-100"}`))
	assert.ErrorIs(t, err, deploy.ErrInvalidTask)

	_, err = deploy.DecodeDeployTask([]byte(`[`))
	assert.ErrorIs(t, err, deploy.ErrInvalidTask)
}
