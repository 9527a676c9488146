package async

import (
	"context"
	"sync"

	"github.com/hibiken/asynq"
)

// MockClient implements the Client interface for testing
type MockClient struct {
	mu sync.Mutex

	CallCount int
	LastTask  *asynq.Task
	// LastOptions are the enqueue options of LastTask.
	LastOptions []asynq.Option
	Tasks       []*asynq.Task
	Error     error
	// Errors fails enqueues of the listed task types only.
	Errors map[string]error
}

func (m *MockClient) Close() error {
	return nil
}

func (m *MockClient) EnqueueContext(_ context.Context, task *asynq.Task, opt ...asynq.Option) (*asynq.TaskInfo, error) {
	return m.enqueue(task, opt)
}

func (m *MockClient) enqueue(task *asynq.Task, opts []asynq.Option) (*asynq.TaskInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++
	m.LastTask = task
	m.LastOptions = opts

	if err, ok := m.Errors[task.Type()]; ok {
		return nil, err
	}

	if m.Error != nil {
		return nil, m.Error
	}

	m.Tasks = append(m.Tasks, task)

	return &asynq.TaskInfo{ID: "mock-task-id", Type: task.Type()}, nil
}

func (m *MockClient) Enqueued() []*asynq.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*asynq.Task(nil), m.Tasks...)
}
