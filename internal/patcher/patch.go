package patcher

import (
	"github.com/openkcm/tenant-lifecycle/internal/fanout"
)

// NamespacePatch is the rendered deploy of one service into one tenant
// namespace. It only lives for the duration of a deploy.
type NamespacePatch struct {
	Service        string
	TenantID       string
	Namespace      string
	RoutePath      string
	ServiceAccount string
	Image          string
	Resources      []Resource
}

// RoutePath is the per-tenant route of a service, "/{tenantId}/{urlPrefix}".
func RoutePath(tenantID, urlPrefix string) string {
	return "/" + tenantID + "/" + urlPrefix
}

// ServiceAccount is the account the service runs as in the tenant namespace.
func ServiceAccount(svc fanout.ServiceRegistration, tenantID string) string {
	if svc.ServiceAccount != "" {
		return svc.ServiceAccount
	}

	return tenantID + "-service-account"
}

// BuildPatch renders tmpl for svc in the namespace of tenantID.
func BuildPatch(svc fanout.ServiceRegistration, tmpl *Template, tenantID string) (NamespacePatch, error) {
	p := NamespacePatch{
		Service:        svc.Name,
		TenantID:       tenantID,
		Namespace:      NamespaceFor(tenantID),
		RoutePath:      RoutePath(tenantID, svc.URLPrefix),
		ServiceAccount: ServiceAccount(svc, tenantID),
		Image:          svc.Image,
	}

	resources, err := tmpl.Render(Values{
		TenantID:       p.TenantID,
		Namespace:      p.Namespace,
		RoutePath:      p.RoutePath,
		ServiceAccount: p.ServiceAccount,
		Image:          p.Image,
	})
	if err != nil {
		return NamespacePatch{}, err
	}

	p.Resources = resources

	return p, nil
}
