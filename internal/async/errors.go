package async

import "errors"

var (
	ErrEnqueueingTask    = errors.New("enqueue task")
	ErrClientShutdown    = errors.New("client shutdown")
	ErrStartingWorker    = errors.New("starting worker")
	ErrCreatingScheduler = errors.New("creating scheduler")
	ErrRunningScheduler  = errors.New("running scheduler")
	ErrInvalidPayload    = errors.New("invalid task payload")
	ErrInspectingQueue   = errors.New("inspecting task queue")

	ErrLoadingTaskQueueHost = errors.New("error loading task queue host")
	ErrMTLSRedisClientOpt   = errors.New("error redis client opt")
	ErrSecretTypeQueue      = errors.New("unsupported secret type for task queue")
	ErrACLPassword          = errors.New("ACL is not load password for redis client")
	ErrACLUsername          = errors.New("ACL is not load username for redis client")
)
