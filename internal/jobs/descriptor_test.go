package jobs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/tenant-lifecycle/internal/event"
	"github.com/openkcm/tenant-lifecycle/internal/jobs"
	"github.com/openkcm/tenant-lifecycle/internal/model"
)

func TestRegisterBuiltinJobs(t *testing.T) {
	table := jobs.NewTable()

	require.NoError(t, table.Register(jobs.ProvisioningJob(time.Minute, "img")))
	require.NoError(t, table.Register(jobs.DeprovisioningJob(time.Minute, "img")))

	assert.Equal(t, []event.DetailType{event.OffboardingRequest, event.OnboardingRequest}, table.Triggers())

	provision := table.For(event.OnboardingRequest)
	require.Len(t, provision, 1)
	assert.Equal(t, "provision", provision[0].Name)
	assert.Empty(t, table.For(event.DeployRequest))
}

func TestRegisterRejects(t *testing.T) {
	valid := jobs.ProvisioningJob(time.Minute, "img")

	tests := []struct {
		name   string
		mutate func(d *jobs.JobDescriptor)
		expErr error
	}{
		{
			name:   "missing name",
			mutate: func(d *jobs.JobDescriptor) { d.Name = "" },
			expErr: jobs.ErrInvalidDescriptor,
		},
		{
			name:   "no timeout",
			mutate: func(d *jobs.JobDescriptor) { d.Timeout = 0 },
			expErr: jobs.ErrInvalidDescriptor,
		},
		{
			name:   "unknown trigger",
			mutate: func(d *jobs.JobDescriptor) { d.Trigger = "TENANT_RENAMED" },
			expErr: event.ErrUnknownDetailType,
		},
		{
			name:   "unknown emit",
			mutate: func(d *jobs.JobDescriptor) { d.Emits = "TENANT_RENAMED" },
			expErr: event.ErrUnknownDetailType,
		},
		{
			name:   "input not carried by trigger",
			mutate: func(d *jobs.JobDescriptor) { d.Inputs = append(d.Inputs, event.FieldTenantConfig) },
			expErr: jobs.ErrUndeclaredInput,
		},
		{
			name:   "required outgoing field not produced",
			mutate: func(d *jobs.JobDescriptor) { d.Outputs = []string{event.FieldTenantStatus} },
			expErr: jobs.ErrUncoveredField,
		},
		{
			name:   "output not on outgoing event",
			mutate: func(d *jobs.JobDescriptor) { d.Outputs = append(d.Outputs, event.FieldEmail) },
			expErr: jobs.ErrExtraOutput,
		},
		{
			name: "outputs without emitted event",
			mutate: func(d *jobs.JobDescriptor) {
				d.Emits = ""
			},
			expErr: jobs.ErrExtraOutput,
		},
		{
			name:   "invalid phase",
			mutate: func(d *jobs.JobDescriptor) { d.Phase = "RENAME" },
			expErr: model.ErrInvalidPhase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			d.Inputs = append([]string(nil), valid.Inputs...)
			d.Outputs = append([]string(nil), valid.Outputs...)
			tt.mutate(&d)

			err := jobs.NewTable().Register(d)
			assert.ErrorIs(t, err, tt.expErr)
		})
	}
}

func TestRegisterDuplicateName(t *testing.T) {
	table := jobs.NewTable()

	require.NoError(t, table.Register(jobs.ProvisioningJob(time.Minute, "img")))

	err := table.Register(jobs.ProvisioningJob(time.Hour, "other"))
	assert.ErrorIs(t, err, jobs.ErrDuplicateJob)
	assert.Len(t, table.For(event.OnboardingRequest), 1)
}

func TestRegisterJobWithoutEvent(t *testing.T) {
	err := jobs.NewTable().Register(jobs.JobDescriptor{
		Name:    "warmup",
		Trigger: event.DeployRequest,
		Inputs:  []string{event.FieldTenantID},
		Timeout: time.Minute,
	})
	assert.NoError(t, err)
}
