package deploy

import "errors"

var (
	ErrUnknownService     = errors.New("no patcher for service")
	ErrLoadingTemplate    = errors.New("loading service template failed")
	ErrRemoteDeployFailed = errors.New("remote deploy failed")
	ErrInvalidTask        = errors.New("invalid deploy task")
	ErrDeployerStopped    = errors.New("deployer stopped")
	ErrUnknownNamespaces  = errors.New("invalid namespace source")
)
