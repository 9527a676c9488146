package orchestrator

import "errors"

var (
	ErrMissingDependency       = errors.New("orchestrator dependency missing")
	ErrGlobalDeployUnavailable = errors.New("global deploy is not configured")
	ErrNothingToRetrigger      = errors.New("tenant has no lifecycle step to re-trigger")
)
