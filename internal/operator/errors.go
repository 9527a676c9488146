package operator

import "errors"

var (
	ErrCheckingNamespace = errors.New("checking namespace existence failed")
	ErrNamespaceNotFound = errors.New("namespace not found")
	ErrServiceMismatch   = errors.New("task type does not match service")
	ErrNoServices        = errors.New("deploy agent serves no services")
	ErrNilDeployer       = errors.New("deployer is nil")
)
