package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/openkcm/tenant-lifecycle/internal/patcher"
)

// NewTriggerBuildCmd deploys one service to one tenant and waits for the
// outcome. A failed deploy fails the command.
func (f *CommandFactory) NewTriggerBuildCmd(ctx context.Context) *cobra.Command {
	var tenantID, service string

	cmd := &cobra.Command{
		Use:   "trigger-build",
		Short: "Deploy a service to a tenant. Usage: tlc trigger-build -i [tenant id] -S [service]",
		Args:  cobra.ExactArgs(0),

		//nolint:contextcheck
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case tenantID == "":
				return ErrTenantIDRequired
			case service == "":
				return ErrServiceRequired
			}

			err := f.lc.RunDeploy(cmd.Context(), tenantID, service)
			if err != nil {
				cmd.PrintErrf("Deploying %s to tenant %s failed: %v\n", service, tenantID, err)
				return err
			}

			cmd.Printf("Deployed %s to tenant %s\n", service, tenantID)

			return nil
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant-id", "i", "", "Tenant id")
	cmd.Flags().StringVarP(&service, "service", "S", "", "Service name")
	markRequired(cmd, "tenant-id", "service")
	cmd.SetContext(ctx)

	return cmd
}

type namespaceFailure struct {
	Namespace string `json:"namespace"`
	Error     string `json:"error"`
}

type globalDeployView struct {
	Service    string             `json:"service"`
	Namespaces int                `json:"namespaces"`
	Applied    []string           `json:"applied"`
	Failed     []namespaceFailure `json:"failed,omitempty"`
}

// NewDeployAllCmd re-applies a service to every tenant namespace. Any failed
// namespace fails the command after all were attempted.
func (f *CommandFactory) NewDeployAllCmd(ctx context.Context) *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   "deploy-all",
		Short: "Deploy a service to every tenant namespace. Usage: tlc deploy-all -S [service]",
		Args:  cobra.ExactArgs(0),

		//nolint:contextcheck
		RunE: func(cmd *cobra.Command, _ []string) error {
			if service == "" {
				return ErrServiceRequired
			}

			res, err := f.lc.DeployAll(cmd.Context(), service)
			if err != nil && !errors.Is(err, patcher.ErrGlobalDeployIncomplete) {
				cmd.PrintErrf("Global deploy of %s failed: %v\n", service, err)
				return err
			}

			view := globalDeployView{
				Service:    res.Service,
				Namespaces: res.Namespaces,
				Applied:    res.Applied,
			}
			for _, failure := range res.Failed {
				view.Failed = append(view.Failed, namespaceFailure{
					Namespace: failure.Namespace,
					Error:     failure.Err.Error(),
				})
			}

			printErr := printJSON(cmd, view)
			if err != nil {
				return err
			}

			return printErr
		},
	}

	cmd.Flags().StringVarP(&service, "service", "S", "", "Service name")
	markRequired(cmd, "service")
	cmd.SetContext(ctx)

	return cmd
}

// NewFailuresCmd lists lifecycle events that failed terminally or ran out of
// redeliveries.
func (f *CommandFactory) NewFailuresCmd(ctx context.Context) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List failed lifecycle events. Usage: tlc failures [--limit n]",
		Args:  cobra.ExactArgs(0),

		//nolint:contextcheck
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.failures == nil {
				return ErrFailuresDisabled
			}

			archived, err := f.failures.ArchivedEvents(cmd.Context(), limit)
			if err != nil {
				cmd.PrintErrf("Failed to list failed events: %v\n", err)
				return err
			}

			return printJSON(cmd, archived)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of events") //nolint:mnd
	cmd.SetContext(ctx)

	return cmd
}
