package operator

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	"github.com/openkcm/tenant-lifecycle/internal/patcher"
)

const (
	checkTimeoutSeconds = 5
)

type NamespaceExistenceStatus int

const (
	// NamespaceNotFound indicates that the namespace doesn't exist yet or is still being created
	NamespaceNotFound NamespaceExistenceStatus = iota + 1
	// NamespaceExists indicates that the namespace exists in the cluster
	NamespaceExists
	// NamespaceCheckFailed indicates that there was an error checking for namespace existence
	NamespaceCheckFailed
)

// NamespaceCheck checks that the namespace of a tenant is there before a
// deploy touches it. Provisioning creates it, possibly after the tenant went
// ACTIVE.
type NamespaceCheck struct {
	Lister patcher.NamespaceLister
}

// Check returns the existence status of the tenant namespace.
func (p *NamespaceCheck) Check(ctx context.Context, tenantID string) (NamespaceExistenceStatus, error) {
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeoutSeconds*time.Second)
	defer cancel()

	namespaces, err := p.Lister.Namespaces(checkCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn(ctx, "Timeout reached during namespace existence check.")
		}

		return NamespaceCheckFailed, errs.Wrap(ErrCheckingNamespace, err)
	}

	if !slices.Contains(namespaces, patcher.NamespaceFor(tenantID)) {
		return NamespaceNotFound, nil
	}

	return NamespaceExists, nil
}
