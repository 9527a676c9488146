package jobs

import "errors"

var (
	ErrInvalidDescriptor = errors.New("invalid job descriptor")
	ErrDuplicateJob      = errors.New("job is registered more than once")
	ErrUndeclaredInput   = errors.New("job input is not carried by its trigger")
	ErrUncoveredField    = errors.New("required field of the emitted event is not produced")
	ErrExtraOutput       = errors.New("job output is not a field of the emitted event")

	ErrMissingInput  = errors.New("event lacks a declared job input")
	ErrMissingOutput = errors.New("job did not produce a declared output")
	ErrJobFailed     = errors.New("job failed")
	ErrJobTimeout    = errors.New("job timed out")
	ErrJobAborted    = errors.New("job aborted")
	ErrPublishFailed = errors.New("publishing job outcome failed")
	ErrEmptyCommand  = errors.New("job command is empty")
)
