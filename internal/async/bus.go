package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/event"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	"github.com/openkcm/tenant-lifecycle/internal/router"
)

// Client is the enqueue side of asynq.
type Client interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Inspector is the part of asynq.Inspector the bus and the CLI use.
type Inspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
	ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// Bus carries lifecycle events as asynq tasks. Each topic is its own task
// type and the dedup key is the task id, so a second enqueue of an event still
// queued or running is rejected by redis.
type Bus struct {
	client    Client
	inspector Inspector
	queue     string
	maxRetry  int

	mu       sync.Mutex
	handlers map[string]asynq.HandlerFunc
	timeouts map[string]time.Duration
}

var _ router.TimeoutBus = (*Bus)(nil)

func NewBus(client Client, inspector Inspector, cfg config.EventBus) *Bus {
	return &Bus{
		client:    client,
		inspector: inspector,
		queue:     cfg.Queue,
		maxRetry:  cfg.MaxRedeliveries,
		handlers:  make(map[string]asynq.HandlerFunc),
		timeouts:  make(map[string]time.Duration),
	}
}

// SetTimeout raises the asynq timeout of topic's tasks to at least d.
// Topics without one get the asynq default.
func (b *Bus) SetTimeout(topic string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if d > b.timeouts[topic] {
		b.timeouts[topic] = d
	}
}

func (b *Bus) options(id, topic string) []asynq.Option {
	opts := []asynq.Option{
		asynq.TaskID(id),
		asynq.Queue(b.queue),
		asynq.MaxRetry(b.maxRetry),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if d, ok := b.timeouts[topic]; ok {
		opts = append(opts, asynq.Timeout(d))
	}

	return opts
}

func (b *Bus) Publish(ctx context.Context, e event.LifecycleEvent) error {
	id := e.DedupKey()

	opts := b.options(id, e.Topic())

	task, err := event.Encode(e)
	if err != nil {
		return err
	}

	ctx = log.InjectTask(ctx, task)

	_, err = b.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		err = b.replaceFinished(ctx, id, task, opts)
	}

	if err != nil {
		return err
	}

	log.Debug(ctx, "Enqueued event task", slog.String("taskId", id))

	return nil
}

// replaceFinished re-enqueues an event whose previous task with the same id
// is archived or completed. Such a task only blocks the id, it is not in
// flight any more, and a manual re-trigger must go through.
func (b *Bus) replaceFinished(ctx context.Context, id string, task *asynq.Task, opts []asynq.Option) error {
	if b.inspector == nil {
		return router.ErrDuplicate
	}

	info, err := b.inspector.GetTaskInfo(b.queue, id)
	if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return errs.Wrap(ErrInspectingQueue, err)
	}

	if info != nil {
		if info.State != asynq.TaskStateArchived && info.State != asynq.TaskStateCompleted {
			return router.ErrDuplicate
		}

		err = b.inspector.DeleteTask(b.queue, id)
		if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return errs.Wrap(ErrInspectingQueue, err)
		}

		log.Info(ctx, "Replacing finished event task", slog.String("taskId", id),
			slog.String("state", info.State.String()))
	}

	_, err = b.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return router.ErrDuplicate
	}

	if err != nil {
		return errs.Wrap(ErrEnqueueingTask, err)
	}

	return nil
}

func (b *Bus) Bind(topics []string, d router.Deliverer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, topic := range topics {
		b.handlers[event.TaskType(topic)] = handler(d)
	}

	return nil
}

// Register installs the bound topics on mux.
func (b *Bus) Register(mux *asynq.ServeMux) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for taskType, h := range b.handlers {
		mux.HandleFunc(taskType, h)
	}
}

// Handler returns the handler bound to taskType, mainly for tests.
func (b *Bus) Handler(taskType string) (asynq.HandlerFunc, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.handlers[taskType]

	return h, ok
}

// handler decodes the task and hands the event to d. Terminal failures skip
// the remaining retries, asynq archives the task right away.
func handler(d router.Deliverer) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		ctx = log.InjectTask(ctx, task)

		e, err := event.Decode(task)
		if err != nil {
			log.Error(ctx, "Dropping undecodable event task", err)
			return errs.Wrap(asynq.SkipRetry, err)
		}

		err = d.Deliver(ctx, e)
		if router.IsTerminal(err) {
			return errs.Wrap(asynq.SkipRetry, err)
		}

		return err
	}
}
