package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/tenant-lifecycle/internal/model"
)

func TestGuardFor(t *testing.T) {
	g, err := model.GuardFor(model.TransitionBeginProvision)
	require.NoError(t, err)
	assert.Equal(t, model.TenantStatusProvisioning, g.Target)
	assert.Equal(t, []model.TenantStatus{model.TenantStatusRequested}, g.From)
	assert.Equal(t, []model.TenantStatus{model.TenantStatusProvisioning}, g.Reclaim)

	g, err = model.GuardFor(model.TransitionBeginDeprovision)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseDeprovision, g.RetryPhase)
	assert.ElementsMatch(t,
		[]model.TenantStatus{model.TenantStatusActive, model.TenantStatusFailed, model.TenantStatusDeprovisioning},
		g.Sources(),
	)

	_, err = model.GuardFor("jump")
	assert.ErrorIs(t, err, model.ErrUnknownTransition)
}

func TestGuardAllows(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name       string
		transition model.Transition
		tenant     model.Tenant
		allowed    bool
	}{
		{
			name:       "forward path",
			transition: model.TransitionBeginProvision,
			tenant:     model.Tenant{Status: model.TenantStatusRequested},
			allowed:    true,
		},
		{
			name:       "live claim blocks duplicate",
			transition: model.TransitionBeginProvision,
			tenant:     model.Tenant{Status: model.TenantStatusProvisioning, ClaimedUntil: &future},
			allowed:    false,
		},
		{
			name:       "expired claim can be reclaimed",
			transition: model.TransitionBeginProvision,
			tenant:     model.Tenant{Status: model.TenantStatusProvisioning, ClaimedUntil: &past},
			allowed:    true,
		},
		{
			name:       "released claim can be reclaimed",
			transition: model.TransitionBeginProvision,
			tenant:     model.Tenant{Status: model.TenantStatusProvisioning},
			allowed:    true,
		},
		{
			name:       "no skipping provisioning from active",
			transition: model.TransitionCompleteProvision,
			tenant:     model.Tenant{Status: model.TenantStatusActive},
			allowed:    false,
		},
		{
			name:       "retry re-enters the failed phase",
			transition: model.TransitionRequest,
			tenant:     model.Tenant{Status: model.TenantStatusFailed, FailedPhase: model.PhaseProvision},
			allowed:    true,
		},
		{
			name:       "retry cannot switch phase",
			transition: model.TransitionRequest,
			tenant:     model.Tenant{Status: model.TenantStatusFailed, FailedPhase: model.PhaseDeprovision},
			allowed:    false,
		},
		{
			name:       "deprovision retry",
			transition: model.TransitionBeginDeprovision,
			tenant:     model.Tenant{Status: model.TenantStatusFailed, FailedPhase: model.PhaseDeprovision},
			allowed:    true,
		},
		{
			name:       "deleted is terminal",
			transition: model.TransitionBeginDeprovision,
			tenant:     model.Tenant{Status: model.TenantStatusDeleted},
			allowed:    false,
		},
		{
			name:       "fail only from in-progress",
			transition: model.TransitionFail,
			tenant:     model.Tenant{Status: model.TenantStatusActive},
			allowed:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := model.GuardFor(tt.transition)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, g.Allows(&tt.tenant, now))
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, model.CanTransition(model.TenantStatusDeprovisioning, model.TransitionCompleteDeprovision))
	assert.False(t, model.CanTransition(model.TenantStatusActive, model.TransitionCompleteDeprovision))
}

func TestPhase(t *testing.T) {
	assert.NoError(t, model.PhaseProvision.Validate())
	assert.ErrorIs(t, model.PhaseNone.Validate(), model.ErrInvalidPhase)
	assert.Equal(t, model.TenantStatusDeprovisioning, model.PhaseDeprovision.InProgress())
	assert.Equal(t, model.TenantStatusActive, model.PhaseProvision.Done())
}

func TestTenantStatusValidate(t *testing.T) {
	assert.NoError(t, model.TenantStatusActive.Validate())
	assert.ErrorIs(t, model.TenantStatus("BLOCKED").Validate(), model.ErrInvalidTenantStatus)
}

func TestTenantTable(t *testing.T) {
	assert.Equal(t, "public.tenants", model.Tenant{}.TableName())
	assert.True(t, model.Tenant{}.IsSharedModel())
	assert.True(t, model.TenantResource{}.IsSharedModel())
	assert.True(t, model.ServiceDeployment{}.IsSharedModel())
}

func TestTenantClone(t *testing.T) {
	until := time.Now()
	orig := &model.Tenant{ID: "t-1", ClaimedUntil: &until}

	c := orig.Clone()
	*c.ClaimedUntil = until.Add(time.Hour)

	assert.Equal(t, until, *orig.ClaimedUntil)
}

func TestStatusGuard(t *testing.T) {
	g := model.StatusGuard(model.TenantStatusProvisioning)

	assert.True(t, g.Allows(&model.Tenant{Status: model.TenantStatusProvisioning}, time.Now()))
	assert.False(t, g.Allows(&model.Tenant{Status: model.TenantStatusActive}, time.Now()))
}
