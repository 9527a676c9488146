package model

import (
	"errors"
)

var (
	ErrInvalidTenantStatus = errors.New("tenant status is not valid")
	ErrInvalidPhase        = errors.New("lifecycle phase is not valid")
	ErrUnknownTransition   = errors.New("unknown lifecycle transition")
)

// TenantStatus represents the status of the tenant.
type TenantStatus string

const (
	TenantStatusRequested      TenantStatus = "REQUESTED"
	TenantStatusProvisioning   TenantStatus = "PROVISIONING"
	TenantStatusActive         TenantStatus = "ACTIVE"
	TenantStatusDeprovisioning TenantStatus = "DEPROVISIONING"
	TenantStatusDeleted        TenantStatus = "DELETED"
	TenantStatusFailed         TenantStatus = "FAILED"
)

var validTenantStatuses = map[TenantStatus]struct{}{
	TenantStatusRequested:      {},
	TenantStatusProvisioning:   {},
	TenantStatusActive:         {},
	TenantStatusDeprovisioning: {},
	TenantStatusDeleted:        {},
	TenantStatusFailed:         {},
}

func (s TenantStatus) String() string {
	return string(s)
}

// Validate validates the given status of the tenant.
// Returns an error if the status is invalid.
func (s TenantStatus) Validate() error {
	if _, ok := validTenantStatuses[s]; !ok {
		return ErrInvalidTenantStatus
	}

	return nil
}

// Phase is the lifecycle operation a tenant is going through.
type Phase string

const (
	PhaseNone        Phase = ""
	PhaseProvision   Phase = "PROVISION"
	PhaseDeprovision Phase = "DEPROVISION"
)

func (p Phase) Validate() error {
	if p != PhaseProvision && p != PhaseDeprovision {
		return ErrInvalidPhase
	}

	return nil
}

// InProgress is the status held while the phase's job runs.
func (p Phase) InProgress() TenantStatus {
	if p == PhaseDeprovision {
		return TenantStatusDeprovisioning
	}

	return TenantStatusProvisioning
}

// Done is the status a tenant reaches when the phase completed.
func (p Phase) Done() TenantStatus {
	if p == PhaseDeprovision {
		return TenantStatusDeleted
	}

	return TenantStatusActive
}
