package async

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/log"
)

const (
	// syncInterval is the interval at which the scheduled task manager will check for config changes.
	syncInterval = 10 * time.Second
)

// TaskHandler defines the interface for handling async
type TaskHandler interface {
	ProcessTask(ctx context.Context, task *asynq.Task) error
	TaskType() string
}

// App manages task processing, scheduling, and worker functionality
type App struct {
	asynqClient    *asynq.Client
	asynqInspector *asynq.Inspector
	asynqServer    *asynq.Server
	scheduler      *asynq.PeriodicTaskManager
	taskQueueCfg   asynq.RedisClientOpt
	tasks          map[string]TaskHandler
	bus            *Bus
	cfg            *config.Config
}

// New creates a new instance of App
func New(cfg *config.Config) (*App, error) {
	redisOpts, err := RedisClientOpt(cfg.EventBus.TaskQueue)
	if err != nil {
		return nil, err
	}

	client := asynq.NewClient(redisOpts)
	inspector := asynq.NewInspector(redisOpts)

	return &App{
		asynqClient:    client,
		asynqInspector: inspector,
		taskQueueCfg:   redisOpts,
		tasks:          make(map[string]TaskHandler),
		bus:            NewBus(client, inspector, cfg.EventBus),
		cfg:            cfg,
	}, nil
}

// Bus is the event bus the router publishes to and binds on.
func (a *App) Bus() *Bus {
	return a.bus
}

// Client is the task queue client, for components enqueueing plain tasks.
func (a *App) Client() Client {
	return a.asynqClient
}

// RegisterTasks registers multiple task handlers
func (a *App) RegisterTasks(ctx context.Context, handlers []TaskHandler) {
	for _, handler := range handlers {
		taskType := handler.TaskType()
		a.tasks[taskType] = handler
		log.Info(ctx, "Registered task", slog.String("Name", taskType))
	}
}

// RunWorker processes event and plain tasks until ctx is cancelled.
func (a *App) RunWorker(ctx context.Context) error {
	log.Info(ctx, "Starting async worker")

	a.asynqServer = asynq.NewServer(a.taskQueueCfg, asynq.Config{
		Concurrency: a.cfg.EventBus.Concurrency,
		Queues:      map[string]int{a.cfg.EventBus.Queue: 1},
		BaseContext: func() context.Context { return ctx },
	})

	mux := asynq.NewServeMux()
	a.bus.Register(mux)

	for taskName, handler := range a.tasks {
		mux.HandleFunc(taskName, handler.ProcessTask)
	}

	err := a.asynqServer.Start(mux)
	if err != nil {
		return errs.Wrap(ErrStartingWorker, err)
	}

	<-ctx.Done()

	return nil
}

// RunScheduler starts the cron related tasks defined in the scheduler config
// and keeps them running until ctx is cancelled.
func (a *App) RunScheduler(ctx context.Context) error {
	provider := &ScheduledTaskConfigProvider{Config: a.cfg}

	mgr, err := asynq.NewPeriodicTaskManager(
		asynq.PeriodicTaskManagerOpts{
			RedisConnOpt:               a.taskQueueCfg,
			PeriodicTaskConfigProvider: provider,
			SyncInterval:               syncInterval,
		})
	if err != nil {
		return errs.Wrap(ErrCreatingScheduler, err)
	}

	err = mgr.Start()
	if err != nil {
		return errs.Wrap(ErrRunningScheduler, err)
	}

	a.scheduler = mgr

	log.Info(ctx, "Scheduler started", slog.Int("tasks", len(a.cfg.Scheduler.Tasks)))

	<-ctx.Done()

	return nil
}

// EnqueueTask is used to run tasks
func (a *App) EnqueueTask(
	ctx context.Context,
	task *asynq.Task,
	opts ...asynq.Option,
) (*asynq.TaskInfo, error) {
	ctx = log.InjectTask(ctx, task)
	log.Debug(ctx, "Enqueuing task to be processed")

	opts = append([]asynq.Option{asynq.Queue(a.cfg.EventBus.Queue)}, opts...)

	info, err := a.asynqClient.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, errs.Wrap(ErrEnqueueingTask, err)
	}

	log.Debug(ctx, "Enqueued task")

	return info, nil
}

// ArchivedEvents lists the event tasks asynq gave up on.
func (a *App) ArchivedEvents(ctx context.Context, limit int) ([]ArchivedEvent, error) {
	return ListArchivedEvents(ctx, a.asynqInspector, a.cfg.EventBus.Queue, limit)
}

// Shutdown gracefully shuts down the worker and scheduler
func (a *App) Shutdown(ctx context.Context) error {
	log.Info(ctx, "Starting async app shutdown")

	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}

	if a.asynqServer != nil {
		a.asynqServer.Shutdown()
	}

	err := a.asynqInspector.Close()
	if err != nil {
		log.Warn(ctx, "Failed to close queue inspector", log.ErrorAttr(err))
	}

	err = a.asynqClient.Close()
	if err != nil {
		return errs.Wrap(ErrClientShutdown, err)
	}

	log.Info(ctx, "Async app shutdown completed")

	return nil
}
