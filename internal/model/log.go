package model

import (
	"context"
	"log/slog"

	slogctx "github.com/veqryn/slog-context"
)

// LogInjectTenant adds the tenant record's lifecycle attributes to ctx's logger.
func LogInjectTenant(ctx context.Context, tenant *Tenant) context.Context {
	attrs := []any{
		slog.String("status", tenant.Status.String()),
		slog.String("tier", tenant.Tier),
		slog.String("schema", tenant.SchemaName),
	}

	if tenant.FailedPhase != "" {
		attrs = append(attrs, slog.String("failedPhase", string(tenant.FailedPhase)))
	}

	return slogctx.With(ctx,
		slog.String("tenantId", tenant.ID),
		slog.Group("tenantData", attrs...),
	)
}
