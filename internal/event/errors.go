package event

import (
	"errors"
	"fmt"
)

var ErrInvalidEvent = errors.New("invalid lifecycle event")

var (
	ErrUnknownDetailType = fmt.Errorf("%w: unknown detail type", ErrInvalidEvent)
	ErrMissingTenantID   = fmt.Errorf("%w: missing tenant id", ErrInvalidEvent)
	ErrMissingService    = fmt.Errorf("%w: deploy request without service", ErrInvalidEvent)
	ErrMissingField      = fmt.Errorf("%w: missing required field", ErrInvalidEvent)
	ErrDecodeEvent       = fmt.Errorf("%w: decoding payload", ErrInvalidEvent)
)
