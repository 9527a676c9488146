package operator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openkcm/tenant-lifecycle/internal/operator"
)

type namespacesFunc func(ctx context.Context) ([]string, error)

func (f namespacesFunc) Namespaces(ctx context.Context) ([]string, error) {
	return f(ctx)
}

func TestNamespaceCheck_Check(t *testing.T) {
	tests := []struct {
		name       string
		namespaces []string
		err        error
		expStatus  operator.NamespaceExistenceStatus
	}{
		{
			name:       "should report existing namespace",
			namespaces: []string{"t-099", "t-100"},
			expStatus:  operator.NamespaceExists,
		},
		{
			name:       "should report missing namespace",
			namespaces: []string{"t-099"},
			expStatus:  operator.NamespaceNotFound,
		},
		{
			name:      "should report failed check",
			err:       assert.AnError,
			expStatus: operator.NamespaceCheckFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := &operator.NamespaceCheck{
				Lister: namespacesFunc(func(context.Context) ([]string, error) {
					return tt.namespaces, tt.err
				}),
			}

			status, err := check.Check(t.Context(), "t-100")
			assert.Equal(t, tt.expStatus, status)

			if tt.err != nil {
				assert.ErrorIs(t, err, operator.ErrCheckingNamespace)
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNamespaceCheck_CheckHonoursTimeout(t *testing.T) {
	check := &operator.NamespaceCheck{
		Lister: namespacesFunc(func(ctx context.Context) ([]string, error) {
			_, ok := ctx.Deadline()
			assert.True(t, ok)

			return nil, nil
		}),
	}

	status, err := check.Check(t.Context(), "t-100")
	assert.NoError(t, err)
	assert.Equal(t, operator.NamespaceNotFound, status)
}
