package registry

import "errors"

var (
	ErrDuplicateRequest = errors.New("tenant is already mid-lifecycle")
	ErrUnknownTenant    = errors.New("unknown tenant")
	ErrInvalidState     = errors.New("tenant is not in a valid state for the operation")
	ErrClaimHeld        = errors.New("tenant is claimed by a running job")
	ErrInvalidRequest   = errors.New("invalid tenant request")
)
