package fanout

import (
	"slices"
	"sync"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/errs"
)

// ServiceRegistration is one application service deployed per tenant.
type ServiceRegistration struct {
	Name      string
	URLPrefix string
	// Project is the deploy target of the service.
	Project string
	Image   string
	// ServiceAccount is shared by all tenants when set, otherwise every tenant
	// gets its own "{tenantId}-service-account".
	ServiceAccount string
	Template       string
}

func FromConfig(svc config.Service) ServiceRegistration {
	return ServiceRegistration{
		Name:           svc.Name,
		URLPrefix:      svc.URLPrefix,
		Project:        svc.Project,
		Image:          svc.Image,
		ServiceAccount: svc.ServiceAccount,
		Template:       svc.Template,
	}
}

func (s ServiceRegistration) Validate() error {
	switch {
	case s.Name == "":
		return errs.Wrapf(ErrInvalidService, "name is required")
	case s.URLPrefix == "":
		return errs.Wrapf(ErrInvalidService, s.Name+": url prefix is required")
	case s.Template == "":
		return errs.Wrapf(ErrInvalidService, s.Name+": template is required")
	default:
		return nil
	}
}

// ServiceRegistry keeps the registrations in registration order.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services []ServiceRegistration
	frozen   bool
}

func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{}
}

// ServicesFromConfig registers every configured service.
func ServicesFromConfig(services []config.Service) (*ServiceRegistry, error) {
	r := NewServiceRegistry()

	for _, svc := range services {
		err := r.Register(FromConfig(svc))
		if err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *ServiceRegistry) Register(s ServiceRegistration) error {
	err := s.Validate()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}

	if slices.ContainsFunc(r.services, func(other ServiceRegistration) bool {
		return other.Name == s.Name
	}) {
		return errs.Wrapf(ErrDuplicateService, s.Name)
	}

	r.services = append(r.services, s)

	return nil
}

// Freeze rejects later registrations. The router subscribes per service, so
// the set is fixed once it is sealed.
func (r *ServiceRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frozen = true
}

func (r *ServiceRegistry) Services() []ServiceRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.services)
}

func (r *ServiceRegistry) Get(name string) (ServiceRegistration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.services {
		if s.Name == name {
			return s, nil
		}
	}

	return ServiceRegistration{}, errs.Wrapf(ErrUnknownService, name)
}

func (r *ServiceRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for _, s := range r.services {
		names = append(names, s.Name)
	}

	return names
}
