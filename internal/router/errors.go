package router

import (
	"errors"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
)

var (
	// ErrTerminal marks a delivery failure that must not be redelivered.
	ErrTerminal = errors.New("terminal delivery failure")
	// ErrDuplicate is returned by a Bus that suppressed an event already in flight.
	ErrDuplicate     = errors.New("duplicate event suppressed")
	ErrRouterSealed  = errors.New("router is sealed")
	ErrRouterStarted = errors.New("router already started")
	ErrNilConsumer   = errors.New("consumer must not be nil")
)

// Terminal marks err as not worth redelivering.
func Terminal(err error) error {
	if err == nil || IsTerminal(err) {
		return err
	}

	return errs.Wrap(ErrTerminal, err)
}

func IsTerminal(err error) bool {
	return errors.Is(err, ErrTerminal)
}
