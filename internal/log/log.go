package log

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/tenant-lifecycle/internal/constants"
	ctxutils "github.com/openkcm/tenant-lifecycle/utils/context"
)

func InjectRequest(ctx context.Context, r *http.Request) context.Context {
	requestID, _ := ctxutils.GetRequestID(ctx)

	return slogctx.With(ctx,
		slog.String("requestId", requestID),
		slog.Group("requestData",
			slog.String("method", r.Method),
			slog.String("host", r.Host),
			slog.String("path", r.URL.Path),
		),
	)
}

func InjectTask(ctx context.Context, task *asynq.Task) context.Context {
	return slogctx.With(ctx, slog.String("taskType", task.Type()))
}

func InjectTenant(ctx context.Context, tenantID string) context.Context {
	return slogctx.With(ctx, slog.String(constants.LogKeyTenantID, tenantID))
}

func InjectEvent(ctx context.Context, detailType, tenantID string) context.Context {
	return slogctx.With(ctx,
		slog.String(constants.LogKeyDetailType, detailType),
		slog.String(constants.LogKeyTenantID, tenantID),
	)
}

func InjectJob(ctx context.Context, job string) context.Context {
	return slogctx.With(ctx, slog.String(constants.LogKeyJob, job))
}

func InjectService(ctx context.Context, service string) context.Context {
	return slogctx.With(ctx, slog.String(constants.LogKeyService, service))
}

func ErrorAttr(err error) slog.Attr {
	return slog.Attr{
		Key:   slogctx.ErrKey,
		Value: slog.StringValue(err.Error()),
	}
}

func Debug(ctx context.Context, msg string, args ...slog.Attr) {
	slogctx.LogAttrs(ctx, slog.LevelDebug, msg, args...)
}

func Warn(ctx context.Context, msg string, args ...slog.Attr) {
	slogctx.LogAttrs(ctx, slog.LevelWarn, msg, args...)
}

func Info(ctx context.Context, msg string, args ...slog.Attr) {
	slogctx.LogAttrs(ctx, slog.LevelInfo, msg, args...)
}

func Error(ctx context.Context, msg string, err error, args ...slog.Attr) {
	args = append(args, slogctx.Err(err))

	slogctx.LogAttrs(ctx, slog.LevelError, msg, args...)
}

func InjectRun(ctx context.Context, runID string) context.Context {
	return slogctx.With(ctx, slog.String(constants.LogKeyRunID, runID))
}

// InjectOrbitalTask tags logs of a deploy task exchanged with the deploy agent.
func InjectOrbitalTask(ctx context.Context, taskID, taskType string) context.Context {
	return slogctx.With(ctx,
		slog.String(constants.LogKeyTaskID, taskID),
		slog.String("taskType", taskType),
	)
}
