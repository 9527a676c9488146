package patcher

import (
	"context"
	"slices"
	"strings"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/model"
)

const (
	SourceCluster  = config.NamespaceSourceCluster
	SourceRegistry = config.NamespaceSourceRegistry
)

// NamespaceLister discovers the tenant namespaces a global deploy covers.
type NamespaceLister interface {
	Namespaces(ctx context.Context) ([]string, error)
}

// KubectlLister lists the namespaces carrying selector.
type KubectlLister struct {
	kubectl  *Kubectl
	selector string
}

var _ NamespaceLister = (*KubectlLister)(nil)

func NewKubectlLister(kubectl *Kubectl, selector string) *KubectlLister {
	return &KubectlLister{kubectl: kubectl, selector: selector}
}

func (l *KubectlLister) Namespaces(ctx context.Context) ([]string, error) {
	args := []string{"get", "namespaces", "-o", "jsonpath={.items[*].metadata.name}"}
	if l.selector != "" {
		args = append(args, "-l", l.selector)
	}

	out, err := l.kubectl.Run(ctx, nil, args...)
	if err != nil {
		return nil, errs.Wrap(ErrListNamespaces, err)
	}

	namespaces := strings.Fields(out)
	slices.Sort(namespaces)

	return namespaces, nil
}

// ActiveTenants is the registry view a RegistryLister needs.
type ActiveTenants interface {
	ListAll(ctx context.Context, statuses ...model.TenantStatus) ([]*model.Tenant, error)
}

// RegistryLister derives the namespaces from the ACTIVE tenants.
type RegistryLister struct {
	tenants ActiveTenants
}

var _ NamespaceLister = (*RegistryLister)(nil)

func NewRegistryLister(tenants ActiveTenants) *RegistryLister {
	return &RegistryLister{tenants: tenants}
}

func (l *RegistryLister) Namespaces(ctx context.Context) ([]string, error) {
	tenants, err := l.tenants.ListAll(ctx, model.TenantStatusActive)
	if err != nil {
		return nil, errs.Wrap(ErrListNamespaces, err)
	}

	namespaces := make([]string, 0, len(tenants))
	for _, t := range tenants {
		namespaces = append(namespaces, NamespaceFor(t.ID))
	}

	return namespaces, nil
}

// NamespaceFor is the namespace a tenant's services live in.
func NamespaceFor(tenantID string) string {
	return tenantID
}
