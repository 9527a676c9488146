package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	msgIdle     = "Waiting for exec commands..."
	msgShutdown = "Shutting down gracefully..."
)

// NewRootCmdWithInfinitySleep returns a root command that, with --sleep, idles
// until ctx is done or the process is signalled. A CLI image can then stay up
// and be driven through exec.
func NewRootCmdWithInfinitySleep(
	ctx context.Context,
	use string,
	shortDesc string,
	longDesc string,
) *cobra.Command {
	var sleep bool

	rootCmd := &cobra.Command{
		Use:   use,
		Short: shortDesc,
		Long:  longDesc,

		RunE: func(cmd *cobra.Command, _ []string) error {
			if !sleep {
				return cmd.Help()
			}

			idle(cmd)

			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&sleep, "sleep", false, "idle until terminated")
	rootCmd.SetContext(ctx)

	return rootCmd
}

func idle(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Println(msgIdle)

	<-ctx.Done()

	cmd.Println(msgShutdown)
}
