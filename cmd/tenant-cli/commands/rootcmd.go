package commands

import (
	"context"

	"github.com/spf13/cobra"

	cliUtils "github.com/openkcm/tenant-lifecycle/utils/cli"
)

func (f *CommandFactory) NewRootCmd(ctx context.Context) *cobra.Command {
	root := cliUtils.NewRootCmdWithInfinitySleep(
		ctx,
		"tlc",
		"Tenant Lifecycle CLI Application",
		"Tenant Lifecycle is a CLI tool to operate the tenant pipeline, supporting: onboarding and offboarding "+
			"tenants, re-triggering a stuck lifecycle step, deploying a service to one tenant or to every tenant "+
			"namespace, and inspecting tenants and failed lifecycle events.",
	)
	root.SilenceUsage = true

	root.AddCommand(f.Commands(ctx)...)

	return root
}
