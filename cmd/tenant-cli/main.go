package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/logger"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/openkcm/tenant-lifecycle/cmd/tenant-cli/commands"
	"github.com/openkcm/tenant-lifecycle/internal/async"
	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/constants"
	"github.com/openkcm/tenant-lifecycle/internal/db"
	"github.com/openkcm/tenant-lifecycle/internal/deploy"
	"github.com/openkcm/tenant-lifecycle/internal/fanout"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	"github.com/openkcm/tenant-lifecycle/internal/metrics"
	"github.com/openkcm/tenant-lifecycle/internal/orchestrator"
	"github.com/openkcm/tenant-lifecycle/internal/patcher"
	"github.com/openkcm/tenant-lifecycle/internal/registry"
	"github.com/openkcm/tenant-lifecycle/internal/repo/sql"
)

func runFuncWithSignalHandling(f func(context.Context, *config.Config) error) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info(ctx, "Interrupt signal received, shutting down...")
		cancel()
	}()

	cfg, err := config.LoadConfig(
		commoncfg.WithEnvOverride(constants.APIName),
	)
	if err != nil {
		log.Error(ctx, "Failed to load config:", err)

		return 1
	}

	err = f(ctx, cfg)
	if err != nil {
		log.Error(ctx, "Failed running tenant-cli", err)
		return 1
	}

	return 0
}

// run wires a publishing-only core: lifecycle events go onto the asynq bus and
// are consumed by the orchestrator workers, deploys run in this process.
func run(ctx context.Context, cfg *config.Config) error {
	err := logger.InitAsDefault(cfg.Logger, cfg.Application)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to initialise the logger")
	}

	dbCon, err := db.StartDB(ctx, cfg)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to initialise db connection")
	}

	app, err := async.New(cfg)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to create the async app")
	}

	defer func() {
		err := app.Shutdown(context.WithoutCancel(ctx))
		if err != nil {
			log.Warn(ctx, "Failed to close the task queue clients", log.ErrorAttr(err))
		}
	}()

	reg := registry.New(sql.NewStore(dbCon))

	services, err := fanout.ServicesFromConfig(cfg.Services)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to register services")
	}

	var lister patcher.NamespaceLister
	if cfg.Patcher.NamespaceSource == patcher.SourceRegistry {
		lister = patcher.NewRegistryLister(reg)
	}

	m := metrics.New()

	patchers, err := deploy.NewKubectlPatchers(cfg.Patcher, services, lister, m)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to load service templates")
	}

	core, err := orchestrator.New(orchestrator.Deps{
		Bus:      app.Bus(),
		Registry: reg,
		Services: services,
		Deployer: patchers,
		Global:   patchers,
		Metrics:  m,
	})
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to wire the orchestration core")
	}

	err = core.Start(ctx)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to start the orchestration core")
	}

	rootCmd := setupCommands(ctx, core, app)

	err = rootCmd.ExecuteContext(ctx)
	if err != nil {
		return oops.In("main").Wrapf(err, "error executing command")
	}

	return nil
}

func setupCommands(ctx context.Context, lc commands.Lifecycle, failures commands.Failures) *cobra.Command {
	return commands.NewCommandFactory(lc, failures).NewRootCmd(ctx)
}

func main() {
	exitCode := runFuncWithSignalHandling(run)
	os.Exit(exitCode)
}
