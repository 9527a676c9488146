package main

import (
	"context"
	"log/slog"

	"github.com/openkcm/tenant-lifecycle/internal/async"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	"github.com/openkcm/tenant-lifecycle/internal/orchestrator"
)

// globalDeploy runs scheduled deploy-all tasks against the core and logs the
// per-namespace outcome.
type globalDeploy struct {
	core *orchestrator.Core
}

var _ async.GlobalDeployer = globalDeploy{}

func (g globalDeploy) DeployAll(ctx context.Context, service string) error {
	res, err := g.core.DeployAll(ctx, service)

	log.Info(ctx, "Scheduled global deploy finished",
		slog.Int("namespaces", res.Namespaces),
		slog.Int("applied", len(res.Applied)),
		slog.Int("failed", len(res.Failed)),
	)

	return err
}
