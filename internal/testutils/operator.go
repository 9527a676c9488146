package testutils

import (
	"context"
	"sync"

	"github.com/openkcm/orbital"
)

// TestDeployAgent answers deploy task requests in memory. Each task is
// reported processing numReconcile times before it ends done or failed.
type TestDeployAgent struct {
	numReconcile int
	success      bool

	mu       sync.Mutex
	counts   map[string]int
	requests []orbital.TaskRequest

	responses chan orbital.TaskResponse
}

func NewTestDeployAgent(numReconcile int, success bool) *TestDeployAgent {
	return &TestDeployAgent{
		numReconcile: numReconcile,
		success:      success,
		counts:       make(map[string]int),
		responses:    make(chan orbital.TaskResponse, 64),
	}
}

func (o *TestDeployAgent) SendTaskRequest(ctx context.Context, req orbital.TaskRequest) error {
	o.mu.Lock()

	o.requests = append(o.requests, req)

	resp := orbital.TaskResponse{
		TaskID:       req.TaskID,
		Type:         req.Type,
		WorkingState: req.WorkingState,
		ETag:         req.ETag,
		Status:       string(orbital.TaskStatusProcessing),
	}

	count := o.counts[req.TaskID.String()]
	if count >= o.numReconcile {
		resp.Status = string(orbital.TaskStatusDone)

		if !o.success {
			resp.Status = string(orbital.TaskStatusFailed)
			resp.ErrorMessage = "simulated failure"
		}
	} else {
		o.counts[req.TaskID.String()] = count + 1
		resp.ReconcileAfterSec = 1
	}

	o.mu.Unlock()

	select {
	case o.responses <- resp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *TestDeployAgent) ReceiveTaskResponse(ctx context.Context) (orbital.TaskResponse, error) {
	select {
	case resp := <-o.responses:
		return resp, nil
	case <-ctx.Done():
		return orbital.TaskResponse{}, ctx.Err()
	}
}

// Requests returns every request received so far, resends included.
func (o *TestDeployAgent) Requests() []orbital.TaskRequest {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]orbital.TaskRequest(nil), o.requests...)
}
