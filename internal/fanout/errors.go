package fanout

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrDuplicateService   = errors.New("service is registered more than once")
	ErrInvalidService     = errors.New("invalid service registration")
	ErrUnknownService     = errors.New("unknown service")
	ErrRegistryFrozen     = errors.New("service registry is frozen")
	ErrPartialFanout      = errors.New("deploy triggers failed for some services")
	ErrDeployFailed       = errors.New("service deploy failed")
	ErrRecordingDeployRun = errors.New("recording deploy status failed")
)

// PartialFanoutFailure reports the services whose deploy trigger could not be
// published. Triggers of the other services went out and are not undone.
type PartialFanoutFailure struct {
	TenantID string
	Services []string
	Err      error
}

func (e *PartialFanoutFailure) Error() string {
	return fmt.Sprintf("%s: tenant %s: services %s: %v",
		ErrPartialFanout, e.TenantID, strings.Join(e.Services, ","), e.Err)
}

func (e *PartialFanoutFailure) Unwrap() []error {
	return []error{ErrPartialFanout, e.Err}
}

// Failed reports whether service is one of the failed triggers.
func (e *PartialFanoutFailure) Failed(service string) bool {
	return slices.Contains(e.Services, service)
}
