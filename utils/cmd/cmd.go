package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"

	"github.com/openkcm/tenant-lifecycle/internal/config"
	"github.com/openkcm/tenant-lifecycle/internal/log"
)

type RunFlags struct {
	GracefulShutdownSec     int64
	GracefulShutdownMessage string
	Env                     string
}

// RunFuncWithSignalHandling loads the config, with environment overrides under
// runFlags.Env, and runs f until it returns. SIGINT and SIGTERM cancel the
// context passed to f. It returns the process exit code.
func RunFuncWithSignalHandling(f func(context.Context, *config.Config) error, runFlags RunFlags) int {
	ctx, cancelOnSignal := signal.NotifyContext(
		context.Background(),
		os.Interrupt, syscall.SIGTERM,
	)
	defer cancelOnSignal()

	cfg, err := config.LoadConfig(
		commoncfg.WithEnvOverride(runFlags.Env),
	)
	if err != nil {
		log.Error(ctx, "Failed to load the configuration", err)
		_, _ = fmt.Fprintln(os.Stderr, err)

		return 1
	}

	log.Debug(ctx, "Starting the application",
		slog.String("env", runFlags.Env),
		slog.String("database", cfg.Database.Name),
		slog.Int("services", len(cfg.Services)),
	)

	err = f(ctx, cfg)
	if err != nil {
		log.Error(ctx, "Failed to start the application", err)
		_, _ = fmt.Fprintln(os.Stderr, err)

		return 1
	}

	// graceful shutdown so running goroutines may finish
	_, _ = fmt.Fprintln(os.Stderr, fmt.Sprintf(runFlags.GracefulShutdownMessage, runFlags.GracefulShutdownSec))
	time.Sleep(time.Duration(runFlags.GracefulShutdownSec) * time.Second)

	return 0
}
