package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/tenant-lifecycle/internal/jobs"
)

func shell(script string) *jobs.ScriptExecutor {
	return &jobs.ScriptExecutor{Command: []string{"/bin/sh", "-c", script}}
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "TENANT_ID", jobs.EnvName("tenantId"))
	assert.Equal(t, "TENANT_CONFIG", jobs.EnvName("tenantConfig"))
	assert.Equal(t, "TIER", jobs.EnvName("tier"))
}

func TestScriptExecutorPassesEnvironment(t *testing.T) {
	exec := shell(`
echo "tenantConfig=cfg-$TENANT_ID-$TIER" >> "$JOB_OUTPUT_FILE"
echo "# comment" >> "$JOB_OUTPUT_FILE"
echo "TENANT_STATUS=ACTIVE" >> "$JOB_OUTPUT_FILE"
echo "image=$IMAGE kube=$KUBECONFIG job=$JOB_NAME" >> "$JOB_OUTPUT_FILE"
`)

	res, err := exec.Execute(t.Context(), jobs.Request{
		Job:        "provision",
		TenantID:   "t-1",
		Inputs:     map[string]string{"tenantId": "t-1", "tier": "basic"},
		Image:      "registry/provision:1",
		Credential: "/etc/kube/config",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"tenantConfig":  "cfg-t-1-basic",
		"TENANT_STATUS": "ACTIVE",
		"image":         "registry/provision:1 kube=/etc/kube/config job=provision",
	}, res.Outputs)
}

func TestScriptExecutorFailure(t *testing.T) {
	_, err := shell(`echo "no quota left" >&2; exit 3`).Execute(t.Context(), jobs.Request{Job: "provision"})

	require.ErrorIs(t, err, jobs.ErrJobFailed)
	assert.Contains(t, err.Error(), "no quota left")
}

func TestScriptExecutorHonoursDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := shell(`sleep 5`).Execute(ctx, jobs.Request{Job: "provision"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScriptExecutorEmptyCommand(t *testing.T) {
	_, err := (&jobs.ScriptExecutor{}).Execute(t.Context(), jobs.Request{})
	assert.ErrorIs(t, err, jobs.ErrEmptyCommand)
}
