package async

import (
	"context"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/event"
	"github.com/openkcm/tenant-lifecycle/internal/log"
)

// ArchivedEvent is an event task that failed terminally or ran out of
// redeliveries. It is the failure signal operators inspect.
type ArchivedEvent struct {
	TaskID       string
	Topic        string
	TenantID     string
	LastErr      string
	LastFailedAt time.Time
	Retried      int
}

func ListArchivedEvents(ctx context.Context, inspector Inspector, queue string, limit int) ([]ArchivedEvent, error) {
	infos, err := inspector.ListArchivedTasks(queue, asynq.PageSize(limit))
	if err != nil {
		return nil, errs.Wrap(ErrInspectingQueue, err)
	}

	archived := make([]ArchivedEvent, 0, len(infos))

	for _, info := range infos {
		if !strings.HasPrefix(info.Type, event.TaskTypePrefix) {
			continue
		}

		a := ArchivedEvent{
			TaskID:       info.ID,
			Topic:        strings.TrimPrefix(info.Type, event.TaskTypePrefix),
			LastErr:      info.LastErr,
			LastFailedAt: info.LastFailedAt,
			Retried:      info.Retried,
		}

		e, err := event.Decode(asynq.NewTask(info.Type, info.Payload))
		if err != nil {
			log.Warn(ctx, "Archived task carries an undecodable event", log.ErrorAttr(err))
		} else {
			a.TenantID = e.TenantID
		}

		archived = append(archived, a)
	}

	return archived, nil
}
