// Package repotest holds the behaviour every repo.Store implementation must show.
package repotest

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	multitenancy "github.com/bartventer/gorm-multitenancy/v8"

	"github.com/openkcm/tenant-lifecycle/internal/model"
	"github.com/openkcm/tenant-lifecycle/internal/repo"
	"github.com/openkcm/tenant-lifecycle/utils/base62"
)

// NewTenant builds a REQUESTED tenant with a valid schema name.
func NewTenant(t *testing.T, id string) *model.Tenant {
	t.Helper()

	schema, err := base62.EncodeSchemaName(id)
	require.NoError(t, err)

	return &model.Tenant{
		TenantModel: multitenancy.TenantModel{DomainURL: id, SchemaName: schema},
		ID:          id,
		CompanyName: "Acme",
		AdminEmail:  "a@acme.com",
		Tier:        "basic",
		Status:      model.TenantStatusRequested,
	}
}

func guard(t *testing.T, transition model.Transition) model.Guard {
	t.Helper()

	g, err := model.GuardFor(transition)
	require.NoError(t, err)

	return g
}

// RunStoreContract runs the shared store behaviour against newStore.
//
//nolint:funlen
func RunStoreContract(t *testing.T, newStore func(t *testing.T) repo.Store) {
	t.Helper()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		id := "c-" + uuid.NewString()[:8]

		require.NoError(t, s.CreateTenant(t.Context(), NewTenant(t, id)))

		got, err := s.GetTenant(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, model.TenantStatusRequested, got.Status)
		assert.False(t, got.CreatedAt.IsZero())

		err = s.CreateTenant(t.Context(), NewTenant(t, id))
		assert.ErrorIs(t, err, repo.ErrUniqueConstraint)

		_, err = s.GetTenant(t.Context(), "missing-"+id)
		assert.ErrorIs(t, err, repo.ErrNotFound)
	})

	t.Run("list by status", func(t *testing.T) {
		s := newStore(t)
		active := "l-" + uuid.NewString()[:8]
		requested := "l-" + uuid.NewString()[:8]

		require.NoError(t, s.CreateTenant(t.Context(), NewTenant(t, requested)))

		tenant := NewTenant(t, active)
		tenant.Status = model.TenantStatusActive
		require.NoError(t, s.CreateTenant(t.Context(), tenant))

		tenants, err := s.ListTenants(t.Context(), repo.TenantFilter{
			Statuses: []model.TenantStatus{model.TenantStatusActive},
			Limit:    1000,
		})
		require.NoError(t, err)

		ids := make([]string, 0, len(tenants))
		for _, tn := range tenants {
			ids = append(ids, tn.ID)
		}

		assert.Contains(t, ids, active)
		assert.NotContains(t, ids, requested)
	})

	t.Run("count by status", func(t *testing.T) {
		s := newStore(t)

		before, err := s.CountTenants(t.Context())
		require.NoError(t, err)

		tenant := NewTenant(t, "n-"+uuid.NewString()[:8])
		tenant.Status = model.TenantStatusActive
		require.NoError(t, s.CreateTenant(t.Context(), tenant))
		require.NoError(t, s.CreateTenant(t.Context(), NewTenant(t, "n-"+uuid.NewString()[:8])))

		after, err := s.CountTenants(t.Context())
		require.NoError(t, err)

		assert.Equal(t, before[model.TenantStatusActive]+1, after[model.TenantStatusActive])
		assert.Equal(t, before[model.TenantStatusRequested]+1, after[model.TenantStatusRequested])
	})

	t.Run("swap honours guard", func(t *testing.T) {
		s := newStore(t)
		id := "s-" + uuid.NewString()[:8]
		require.NoError(t, s.CreateTenant(t.Context(), NewTenant(t, id)))

		now := time.Now().UTC()
		until := now.Add(time.Hour)

		got, err := s.SwapTenant(t.Context(), id, guard(t, model.TransitionBeginProvision), now, repo.TenantUpdate{
			Status:       model.TenantStatusProvisioning,
			ClaimedUntil: &until,
		})
		require.NoError(t, err)
		assert.Equal(t, model.TenantStatusProvisioning, got.Status)
		require.NotNil(t, got.ClaimedUntil)

		// live claim
		_, err = s.SwapTenant(t.Context(), id, guard(t, model.TransitionBeginProvision), now, repo.TenantUpdate{
			Status: model.TenantStatusProvisioning,
		})
		assert.ErrorIs(t, err, repo.ErrConditionFailed)

		// after the claim lapsed
		_, err = s.SwapTenant(t.Context(), id, guard(t, model.TransitionBeginProvision), until.Add(time.Second),
			repo.TenantUpdate{Status: model.TenantStatusProvisioning, ClaimedUntil: &until})
		require.NoError(t, err)

		cfg := `{"cluster":"c1"}`
		got, err = s.SwapTenant(t.Context(), id, guard(t, model.TransitionCompleteProvision), now, repo.TenantUpdate{
			Status:       model.TenantStatusActive,
			TenantConfig: &cfg,
		})
		require.NoError(t, err)
		assert.Equal(t, model.TenantStatusActive, got.Status)
		assert.Equal(t, cfg, got.TenantConfig)
		assert.Nil(t, got.ClaimedUntil)

		_, err = s.SwapTenant(t.Context(), "missing-"+id, guard(t, model.TransitionCompleteProvision), now,
			repo.TenantUpdate{Status: model.TenantStatusActive})
		assert.ErrorIs(t, err, repo.ErrConditionFailed)
	})

	t.Run("failed phase restricts retry", func(t *testing.T) {
		s := newStore(t)
		id := "f-" + uuid.NewString()[:8]

		tenant := NewTenant(t, id)
		tenant.Status = model.TenantStatusFailed
		tenant.FailedPhase = model.PhaseDeprovision
		require.NoError(t, s.CreateTenant(t.Context(), tenant))

		now := time.Now().UTC()

		_, err := s.SwapTenant(t.Context(), id, guard(t, model.TransitionRequest), now,
			repo.TenantUpdate{Status: model.TenantStatusRequested})
		assert.ErrorIs(t, err, repo.ErrConditionFailed)

		_, err = s.SwapTenant(t.Context(), id, guard(t, model.TransitionBeginDeprovision), now,
			repo.TenantUpdate{Status: model.TenantStatusDeprovisioning})
		assert.NoError(t, err)
	})

	t.Run("concurrent swaps advance once", func(t *testing.T) {
		s := newStore(t)
		id := "r-" + uuid.NewString()[:8]
		require.NoError(t, s.CreateTenant(t.Context(), NewTenant(t, id)))

		now := time.Now().UTC()
		until := now.Add(time.Hour)

		var (
			wg  sync.WaitGroup
			won atomic.Int32
		)

		begin := guard(t, model.TransitionBeginProvision)

		for range 8 {
			wg.Go(func() {
				_, err := s.SwapTenant(t.Context(), id, begin, now,
					repo.TenantUpdate{Status: model.TenantStatusProvisioning, ClaimedUntil: &until})
				if err == nil {
					won.Add(1)
				}
			})
		}

		wg.Wait()
		assert.Equal(t, int32(1), won.Load())
	})

	t.Run("deployments upsert", func(t *testing.T) {
		s := newStore(t)
		id := "d-" + uuid.NewString()[:8]

		require.NoError(t, s.UpsertDeployment(t.Context(), &model.ServiceDeployment{
			TenantID: id, Service: "product", Status: model.DeploymentPending,
		}))
		require.NoError(t, s.UpsertDeployment(t.Context(), &model.ServiceDeployment{
			TenantID: id, Service: "product", Status: model.DeploymentFailed, LastError: "boom",
		}))
		require.NoError(t, s.UpsertDeployment(t.Context(), &model.ServiceDeployment{
			TenantID: id, Service: "order", Status: model.DeploymentSucceeded,
		}))

		deployments, err := s.ListDeployments(t.Context(), id)
		require.NoError(t, err)
		require.Len(t, deployments, 2)
		assert.Equal(t, "order", deployments[0].Service)
		assert.Equal(t, model.DeploymentFailed, deployments[1].Status)
		assert.Equal(t, "boom", deployments[1].LastError)
	})

	t.Run("pooled resources are tenant scoped", func(t *testing.T) {
		s := newStore(t)
		tenantA := "a-" + uuid.NewString()[:8]
		tenantB := "b-" + uuid.NewString()[:8]
		shared := uuid.New()

		for _, tenantID := range []string{tenantA, tenantB} {
			require.NoError(t, s.PutResource(t.Context(), &model.TenantResource{
				TenantID:   tenantID,
				ResourceID: shared,
				Kind:       "product",
				Data:       json.RawMessage(`{"owner":"` + tenantID + `"}`),
			}))
		}

		got, err := s.GetResource(t.Context(), tenantA, shared)
		require.NoError(t, err)
		assert.JSONEq(t, `{"owner":"`+tenantA+`"}`, string(got.Data))

		list, err := s.ListResources(t.Context(), tenantB)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, tenantB, list[0].TenantID)

		require.NoError(t, s.DeleteResource(t.Context(), tenantA, shared))
		assert.ErrorIs(t, s.DeleteResource(t.Context(), tenantA, shared), repo.ErrNotFound)

		_, err = s.GetResource(t.Context(), tenantB, shared)
		assert.NoError(t, err)

		_, err = s.ListResources(t.Context(), "")
		assert.ErrorIs(t, err, repo.ErrMissingTenant)
	})

	t.Run("purge on swap", func(t *testing.T) {
		s := newStore(t)
		id := "p-" + uuid.NewString()[:8]

		tenant := NewTenant(t, id)
		tenant.Status = model.TenantStatusDeprovisioning
		require.NoError(t, s.CreateTenant(t.Context(), tenant))
		require.NoError(t, s.PutResource(t.Context(), &model.TenantResource{
			TenantID: id, ResourceID: uuid.New(), Kind: "order", Data: json.RawMessage(`{}`),
		}))

		got, err := s.SwapTenant(t.Context(), id, guard(t, model.TransitionCompleteDeprovision), time.Now().UTC(),
			repo.TenantUpdate{Status: model.TenantStatusDeleted, PurgeResources: true})
		require.NoError(t, err)
		assert.Equal(t, model.TenantStatusDeleted, got.Status)

		list, err := s.ListResources(t.Context(), id)
		require.NoError(t, err)
		assert.Empty(t, list)

		tombstone, err := s.GetTenant(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, model.TenantStatusDeleted, tombstone.Status)
	})
}
