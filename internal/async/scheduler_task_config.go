package async

import (
	"github.com/hibiken/asynq"

	"github.com/openkcm/tenant-lifecycle/internal/config"
)

// ScheduledTaskConfigProvider implements asynq PeriodicTaskConfigProvider interface.
type ScheduledTaskConfigProvider struct {
	Config *config.Config
}

// GetConfigs returns one periodic global deploy per configured task.
func (p *ScheduledTaskConfigProvider) GetConfigs() ([]*asynq.PeriodicTaskConfig, error) {
	tasks := p.Config.Scheduler.Tasks

	configs := make([]*asynq.PeriodicTaskConfig, 0, len(tasks))

	for _, cfg := range tasks {
		task, err := NewDeployAllTask(cfg.Service,
			asynq.MaxRetry(cfg.Retries),
			asynq.Queue(p.Config.EventBus.Queue),
		)
		if err != nil {
			return nil, err
		}

		configs = append(configs, &asynq.PeriodicTaskConfig{
			Cronspec: cfg.Cronspec,
			Task:     task,
		})
	}

	return configs, nil
}
