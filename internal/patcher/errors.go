package patcher

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTemplate        = errors.New("invalid patch template")
	ErrUnresolvedPlaceholder  = errors.New("template placeholder left unresolved")
	ErrCrossNamespace         = errors.New("resource targets another namespace")
	ErrApplyFailed            = errors.New("applying namespace patch failed")
	ErrListNamespaces         = errors.New("listing tenant namespaces failed")
	ErrGlobalDeployIncomplete = errors.New("global deploy failed for some namespaces")
	ErrUnknownNamespace       = errors.New("namespace does not exist")
)

// NamespaceApplyFailure is the failure of one namespace during a global
// deploy. The other namespaces are still processed.
type NamespaceApplyFailure struct {
	Service   string
	Namespace string
	Err       error
}

func (e *NamespaceApplyFailure) Error() string {
	return fmt.Sprintf("%s: service %s namespace %s: %v", ErrApplyFailed, e.Service, e.Namespace, e.Err)
}

func (e *NamespaceApplyFailure) Unwrap() []error {
	return []error{ErrApplyFailed, e.Err}
}
