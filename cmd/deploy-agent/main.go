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
	"github.com/openkcm/orbital"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/constants"
	"github.com/openkcm/tenant-lifecycle/internal/deploy"
	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/fanout"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	"github.com/openkcm/tenant-lifecycle/internal/metrics"
	"github.com/openkcm/tenant-lifecycle/internal/operator"
	"github.com/openkcm/tenant-lifecycle/internal/patcher"
)

const (
	AppName = "deploy-agent"

	healthStatusTimeoutS = 5 * time.Second
)

var (
	gracefulShutdownSec     = flag.Int64("graceful-shutdown", 1, "graceful shutdown seconds")
	gracefulShutdownMessage = flag.String("graceful-shutdown-message", "Graceful shutdown in %d seconds",
		"graceful shutdown message")
	waitNamespace = flag.Bool("wait-namespace", true, "hold deploys back until the tenant namespace exists")
)

func runFuncWithSignalHandling(f func(context.Context, *config.Config) error) int {
	ctx, cancelOnSignal := signal.NotifyContext(
		context.Background(),
		os.Interrupt, syscall.SIGTERM,
	)
	defer cancelOnSignal()

	cfg, err := config.LoadConfig(commoncfg.WithEnvOverride("DEPLOY_AGENT"))
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

	_, _ = fmt.Fprintln(os.Stderr, fmt.Sprintf(*gracefulShutdownMessage, *gracefulShutdownSec))
	time.Sleep(time.Duration(*gracefulShutdownSec) * time.Second)

	return 0
}

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

	err = cfg.DeployAgent.Validate()
	if err != nil {
		return oops.In("main").Wrapf(err, "invalid deploy agent configuration")
	}

	agent, closeClient, err := newAgent(ctx, cfg)
	if err != nil {
		return err
	}

	defer closeClient()

	startStatusServer(ctx, cfg)

	err = agent.RunOperator(ctx)
	if err != nil {
		return oops.In(AppName).Wrapf(err, "running deploy agent")
	}

	return nil
}

func newAgent(ctx context.Context, cfg *config.Config) (*operator.DeployAgent, func(), error) {
	if cfg.Patcher.NamespaceSource == patcher.SourceRegistry {
		return nil, nil, oops.In(AppName).Wrapf(
			errs.Wrapf(deploy.ErrUnknownNamespaces, cfg.Patcher.NamespaceSource),
			"the deploy agent discovers namespaces on its cluster",
		)
	}

	services, err := fanout.ServicesFromConfig(cfg.Services)
	if err != nil {
		return nil, nil, oops.In(AppName).Wrapf(err, "registering services")
	}

	m := metrics.New()

	err = m.Register(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, nil, oops.In(AppName).Wrapf(err, "registering metrics")
	}

	kubectl := patcher.NewKubectl(cfg.Patcher.Kubectl, cfg.Patcher.Kubeconfig)
	lister := patcher.NewKubectlLister(kubectl, cfg.Patcher.NamespaceSelector)

	local, err := deploy.NewKubectlPatchers(cfg.Patcher, services, lister, m)
	if err != nil {
		return nil, nil, oops.In(AppName).Wrapf(err, "loading service templates")
	}

	var opts []operator.Option
	if *waitNamespace {
		opts = append(opts, operator.WithNamespaceCheck(&operator.NamespaceCheck{Lister: lister}))
	}

	client, err := deploy.NewAMQPClient(ctx, cfg.DeployAgent)
	if err != nil {
		return nil, nil, oops.In(AppName).Wrapf(err, "connecting to the deploy broker")
	}

	closeClient := func() {
		err := client.Close(context.WithoutCancel(ctx))
		if err != nil {
			log.Warn(ctx, "Closing the deploy broker connection failed", log.ErrorAttr(err))
		}
	}

	agent, err := operator.NewDeployAgent(orbital.TargetOperator{Client: client}, local, local.Services(), opts...)
	if err != nil {
		closeClient()
		return nil, nil, oops.In(AppName).Wrapf(err, "creating deploy agent")
	}

	log.Info(ctx, "Deploy agent configured", slog.Any("services", local.Services()), slog.Bool("waitNamespace", *waitNamespace))

	return agent, closeClient, nil
}

func startStatusServer(ctx context.Context, cfg *config.Config) {
	liveness := status.WithLiveness(
		health.NewHandler(
			health.NewChecker(health.WithDisabledAutostart()),
		),
	)

	readiness := status.WithReadiness(
		health.NewHandler(
			health.NewChecker(
				health.WithDisabledAutostart(),
				health.WithTimeout(healthStatusTimeoutS),
			),
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

func main() {
	flag.Parse()

	exitCode := runFuncWithSignalHandling(run)
	os.Exit(exitCode)
}
