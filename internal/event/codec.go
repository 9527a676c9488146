package event

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
)

// TaskTypePrefix marks asynq task types that carry lifecycle events.
const TaskTypePrefix = "lifecycle:"

// TaskType is the asynq task type events of a topic are carried under.
func TaskType(topic string) string {
	return TaskTypePrefix + topic
}

// Encode marshals the event into an asynq task for its topic.
func Encode(e LifecycleEvent, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskType(e.Topic()), payload, opts...), nil
}

func Decode(task *asynq.Task) (LifecycleEvent, error) {
	var e LifecycleEvent

	err := json.Unmarshal(task.Payload(), &e)
	if err != nil {
		return LifecycleEvent{}, errs.Wrap(ErrDecodeEvent, err)
	}

	return e, nil
}
