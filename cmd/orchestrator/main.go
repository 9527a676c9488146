package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/health"
	"github.com/openkcm/common-sdk/pkg/logger"
	"github.com/openkcm/common-sdk/pkg/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/openkcm/tenant-lifecycle/internal/async"
	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/constants"
	"github.com/openkcm/tenant-lifecycle/internal/daemon"
	"github.com/openkcm/tenant-lifecycle/internal/db"
	"github.com/openkcm/tenant-lifecycle/internal/db/dsn"
	"github.com/openkcm/tenant-lifecycle/internal/deploy"
	"github.com/openkcm/tenant-lifecycle/internal/fanout"
	"github.com/openkcm/tenant-lifecycle/internal/jobs"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	"github.com/openkcm/tenant-lifecycle/internal/metrics"
	"github.com/openkcm/tenant-lifecycle/internal/orchestrator"
	"github.com/openkcm/tenant-lifecycle/internal/patcher"
	"github.com/openkcm/tenant-lifecycle/internal/registry"
	"github.com/openkcm/tenant-lifecycle/internal/repo"
	"github.com/openkcm/tenant-lifecycle/internal/repo/memory"
	"github.com/openkcm/tenant-lifecycle/internal/repo/sql"
	"github.com/openkcm/tenant-lifecycle/internal/router"
)

var (
	gracefulShutdownSec     = flag.Int64("graceful-shutdown", 1, "graceful shutdown seconds")
	gracefulShutdownMessage = flag.String("graceful-shutdown-message", "Graceful shutdown in %d seconds",
		"graceful shutdown message")
	local = flag.Bool("local", false, "run on the in-process bus and an in-memory registry")
)

const (
	healthStatusTimeoutS = 5 * time.Second
	postgresDriverName   = "pgx"
)

// runFuncWithSignalHandling runs the given function with signal handling. When
// a CTRL-C is received, the context will be cancelled on which the function can
// act upon.
// It returns the exitCode
func runFuncWithSignalHandling(f func(context.Context, *config.Config) error) int {
	ctx, cancelOnSignal := signal.NotifyContext(
		context.Background(),
		os.Interrupt, syscall.SIGTERM,
	)
	defer cancelOnSignal()

	cfg, err := config.LoadConfig(commoncfg.WithEnvOverride(constants.APIName))
	if err != nil {
		log.Error(ctx, "Failed to load the configuration", err)
		_, _ = fmt.Fprintln(os.Stderr, err)

		return 1
	}

	err = f(ctx, cfg)
	if err != nil {
		log.Error(ctx, "Failed to start the application", err)
		_, _ = fmt.Fprintln(os.Stderr, err)

		return 1
	}

	// graceful shutdown so running goroutines may finish
	_, _ = fmt.Fprintln(os.Stderr, fmt.Sprintf(*gracefulShutdownMessage, *gracefulShutdownSec))
	time.Sleep(time.Duration(*gracefulShutdownSec) * time.Second)

	return 0
}

// - Starts the status server
// - Wires the orchestration core on the configured bus
// - Starts the intake API, and on the asynq bus the worker and scheduler
func run(ctx context.Context, cfg *config.Config) error {
	err := commoncfg.UpdateConfigVersion(&cfg.BaseConfig, constants.BuildVersion)
	if err != nil {
		return oops.In("main").
			Wrapf(err, "Failed to update the version configuration")
	}

	err = logger.InitAsDefault(cfg.Logger, cfg.Application)
	if err != nil {
		return oops.In("main").
			Wrapf(err, "Failed to initialise the logger")
	}

	log.Debug(ctx, "Starting the application", slog.Bool("local", *local))

	err = cfg.Jobs.Validate()
	if err != nil {
		return oops.In("main").Wrapf(err, "invalid job configuration")
	}

	m := metrics.New()

	err = m.Register(prometheus.DefaultRegisterer)
	if err != nil {
		return oops.In("main").Wrapf(err, "registering metrics")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	startStatusServer(ctx, cfg)

	reg := registry.New(store)

	services, err := fanout.ServicesFromConfig(cfg.Services)
	if err != nil {
		return oops.In("main").Wrapf(err, "registering services")
	}

	deps := orchestrator.Deps{
		Registry: reg,
		Services: services,
		Jobs:     jobsFromConfig(cfg.Jobs),
		Metrics:  m,
	}

	err = wireDeployers(ctx, cfg, reg, m, &deps)
	if err != nil {
		return err
	}

	var app *async.App

	if *local {
		deps.Bus = router.NewLocalBus(router.WithMaxRedeliveries(cfg.EventBus.MaxRedeliveries))
	} else {
		app, err = async.New(cfg)
		if err != nil {
			return oops.In("main").Wrapf(err, "failed to create the async app")
		}

		deps.Bus = app.Bus()
	}

	core, err := orchestrator.New(deps)
	if err != nil {
		return oops.In("main").Wrapf(err, "wiring orchestration core")
	}

	err = core.Start(ctx)
	if err != nil {
		return oops.In("main").Wrapf(err, "starting orchestration core")
	}

	if app != nil {
		startAsync(ctx, cfg, app, core, deps.Global != nil)
	}

	s := daemon.NewIntakeServer(cfg.HTTP, core, prometheus.DefaultGatherer)

	err = s.Start(ctx)
	if err != nil {
		return oops.In("main").Wrapf(err, "starting intake server")
	}

	<-ctx.Done()

	shutdownCtx := context.WithoutCancel(ctx)

	err = s.Close(shutdownCtx)
	if err != nil {
		return oops.In("main").Wrapf(err, "closing server")
	}

	if app != nil {
		err = app.Shutdown(shutdownCtx)
		if err != nil {
			return oops.In("main").Wrapf(err, "%s", async.ErrClientShutdown.Error())
		}
	}

	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (repo.Store, error) {
	if *local {
		log.Warn(ctx, "Running with an in-memory registry, tenant state is lost on exit")
		return memory.NewStore(), nil
	}

	dbCon, err := db.StartDB(ctx, cfg)
	if err != nil {
		return nil, oops.In("main").Wrapf(err, "Failed to initialise db connection")
	}

	return sql.NewStore(dbCon), nil
}

// wireDeployers deploys through the deploy agent when one is configured and
// with kubectl in process otherwise. Only the in-process patchers can deploy
// globally.
func wireDeployers(
	ctx context.Context,
	cfg *config.Config,
	reg *registry.Registry,
	m *metrics.Metrics,
	deps *orchestrator.Deps,
) error {
	if cfg.DeployAgent.AMQP.URL != "" {
		err := cfg.DeployAgent.Validate()
		if err != nil {
			return oops.In("main").Wrapf(err, "invalid deploy agent configuration")
		}

		client, err := deploy.NewAMQPClient(ctx, cfg.DeployAgent)
		if err != nil {
			return oops.In("main").Wrapf(err, "connecting to deploy agent")
		}

		remote := deploy.NewRemoteDeployer(client)

		go func() {
			defer func() {
				_ = client.Close(context.WithoutCancel(ctx))
			}()

			err := remote.Start(ctx)
			if err != nil {
				log.Error(ctx, "Deploy agent responses stopped", err)
			}
		}()

		deps.Deployer = remote

		return nil
	}

	var lister patcher.NamespaceLister
	if cfg.Patcher.NamespaceSource == patcher.SourceRegistry {
		lister = patcher.NewRegistryLister(reg)
	}

	patchers, err := deploy.NewKubectlPatchers(cfg.Patcher, deps.Services, lister, m)
	if err != nil {
		return oops.In("main").Wrapf(err, "loading service templates")
	}

	deps.Deployer = patchers
	deps.Global = patchers

	return nil
}

func jobsFromConfig(cfg config.Jobs) []orchestrator.Job {
	job := func(desc jobs.JobDescriptor, j config.Job) orchestrator.Job {
		var opts []jobs.RunnerOption
		if j.Kubeconfig != "" {
			opts = append(opts, jobs.WithCredential(j.Kubeconfig))
		}

		return orchestrator.Job{
			Descriptor: desc,
			Executor:   &jobs.ScriptExecutor{Command: j.Command},
			Opts:       opts,
		}
	}

	return []orchestrator.Job{
		job(jobs.ProvisioningJob(cfg.Provisioning.Timeout, cfg.Provisioning.Image), cfg.Provisioning),
		job(jobs.DeprovisioningJob(cfg.Deprovisioning.Timeout, cfg.Deprovisioning.Image), cfg.Deprovisioning),
	}
}

func startAsync(ctx context.Context, cfg *config.Config, app *async.App, core *orchestrator.Core, global bool) {
	if global {
		app.RegisterTasks(ctx, []async.TaskHandler{
			async.NewDeployAll(globalDeploy{core: core}),
		})
	}

	go func() {
		err := app.RunWorker(ctx)
		if err != nil {
			log.Error(ctx, "Failure on the async worker", err)

			_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
		}
	}()

	if !global || len(cfg.Scheduler.Tasks) == 0 {
		return
	}

	go func() {
		err := app.RunScheduler(ctx)
		if err != nil {
			log.Error(ctx, "Failure on the scheduler", err)

			_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
		}
	}()
}

func startStatusServer(ctx context.Context, cfg *config.Config) {
	liveness := status.WithLiveness(
		health.NewHandler(
			health.NewChecker(health.WithDisabledAutostart()),
		),
	)

	healthOptions := make([]health.Option, 0)
	healthOptions = append(healthOptions,
		health.WithDisabledAutostart(),
		health.WithTimeout(healthStatusTimeoutS),
		health.WithStatusListener(func(ctx context.Context, state health.State) {
			log.Info(ctx, "readiness status changed", slog.String("status", string(state.Status)))
		}),
	)

	if !*local {
		dsnFromConfig, err := dsn.FromDBConfig(cfg.Database)
		if err != nil {
			log.Error(ctx, "Could not load DSN from database config", err)
		}

		healthOptions = append(healthOptions,
			health.WithDatabaseChecker(
				postgresDriverName,
				dsnFromConfig,
			),
		)
	}

	readiness := status.WithReadiness(
		health.NewHandler(
			health.NewChecker(healthOptions...),
		),
	)

	go func() {
		err := status.Start(ctx, &cfg.BaseConfig, liveness, readiness)
		if err != nil {
			log.Error(ctx, "Failure on the status server", err)

			_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
		}
	}()
}

// main is the entry point for the application. It is intentionally kept small
// because it is hard to test, which would lower test coverage.
func main() {
	flag.Parse()

	exitCode := runFuncWithSignalHandling(run)
	os.Exit(exitCode)
}
