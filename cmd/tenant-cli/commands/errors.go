package commands

import "errors"

var (
	ErrTenantIDRequired = errors.New("tenant id is required")
	ErrServiceRequired  = errors.New("service is required")
	ErrFailuresDisabled = errors.New("failure inspection needs the asynq bus")
)
