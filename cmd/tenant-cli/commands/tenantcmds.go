package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/openkcm/tenant-lifecycle/internal/model"
	"github.com/openkcm/tenant-lifecycle/internal/registry"
	"github.com/openkcm/tenant-lifecycle/internal/repo"
)

// NewOnboardCmd requests provisioning of a new tenant.
func (f *CommandFactory) NewOnboardCmd(ctx context.Context) *cobra.Command {
	var req registry.TenantRequest

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Onboard a tenant. Usage: tlc onboard -i [tenant id] -c [company] -e [admin email] -t [tier]",
		Args:  cobra.ExactArgs(0),

		//nolint:contextcheck
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := f.lc.Onboard(cmd.Context(), req)
			if err != nil {
				cmd.PrintErrf("Failed to onboard tenant %s: %v\n", req.TenantID, err)
				return err
			}

			cmd.Printf("Tenant %s onboarding requested\n", tenant.ID)

			return nil
		},
	}

	cmd.Flags().StringVarP(&req.TenantID, "tenant-id", "i", "", "Tenant id")
	cmd.Flags().StringVarP(&req.CompanyName, "company", "c", "", "Company name")
	cmd.Flags().StringVarP(&req.AdminEmail, "email", "e", "", "Admin email")
	cmd.Flags().StringVarP(&req.Tier, "tier", "t", "", "Tenant tier")

	markRequired(cmd, "tenant-id", "company", "email", "tier")
	cmd.SetContext(ctx)

	return cmd
}

// NewOffboardCmd requests deprovisioning of a tenant.
func (f *CommandFactory) NewOffboardCmd(ctx context.Context) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "offboard",
		Short: "Offboard a tenant. Usage: tlc offboard -i [tenant id]",
		Args:  cobra.ExactArgs(0),

		//nolint:contextcheck
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == "" {
				return ErrTenantIDRequired
			}

			_, err := f.lc.Offboard(cmd.Context(), id)
			if err != nil {
				cmd.PrintErrf("Failed to offboard tenant %s: %v\n", id, err)
				return err
			}

			cmd.Printf("Tenant %s offboarding requested\n", id)

			return nil
		},
	}

	cmd.Flags().StringVarP(&id, "tenant-id", "i", "", "Tenant id")
	markRequired(cmd, "tenant-id")
	cmd.SetContext(ctx)

	return cmd
}

// NewRetriggerCmd re-publishes the event of the tenant's current lifecycle step.
func (f *CommandFactory) NewRetriggerCmd(ctx context.Context) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "retrigger",
		Short: "Re-trigger the current lifecycle step of a tenant. Usage: tlc retrigger -i [tenant id]",
		Args:  cobra.ExactArgs(0),

		//nolint:contextcheck
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == "" {
				return ErrTenantIDRequired
			}

			e, err := f.lc.Retrigger(cmd.Context(), id)
			if err != nil {
				cmd.PrintErrf("Failed to re-trigger tenant %s: %v\n", id, err)
				return err
			}

			cmd.Printf("Published %s for tenant %s\n", e.Topic(), id)

			return nil
		},
	}

	cmd.Flags().StringVarP(&id, "tenant-id", "i", "", "Tenant id")
	markRequired(cmd, "tenant-id")
	cmd.SetContext(ctx)

	return cmd
}

type tenantView struct {
	Tenant           *model.Tenant              `json:"tenant"`
	Deployments      []*model.ServiceDeployment `json:"deployments"`
	DegradedServices []string                   `json:"degradedServices"`
}

// NewGetTenantCmd prints a tenant with its per-service deploy records.
func (f *CommandFactory) NewGetTenantCmd(ctx context.Context) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get tenant by id. Usage: tlc get -i [tenant id]",
		Args:  cobra.ExactArgs(0),

		//nolint:contextcheck
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == "" {
				return ErrTenantIDRequired
			}

			ctx := cmd.Context()

			tenant, err := f.lc.Get(ctx, id)
			if err != nil {
				cmd.PrintErrf("Failed to get tenant by ID %s: %v\n", id, err)
				return err
			}

			deployments, err := f.lc.Deployments(ctx, id)
			if err != nil {
				return err
			}

			degraded, err := f.lc.DegradedServices(ctx, id)
			if err != nil {
				return err
			}

			return printJSON(cmd, tenantView{
				Tenant:           tenant,
				Deployments:      deployments,
				DegradedServices: degraded,
			})
		},
	}

	cmd.Flags().StringVarP(&id, "tenant-id", "i", "", "Tenant id")
	markRequired(cmd, "tenant-id")
	cmd.SetContext(ctx)

	return cmd
}

// NewListTenantsCmd lists tenants, optionally by status.
func (f *CommandFactory) NewListTenantsCmd(ctx context.Context) *cobra.Command {
	var (
		statuses      []string
		limit, offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants. Usage: tlc list [-s ACTIVE -s FAILED] [--limit n] [--offset n]",
		Args:  cobra.ExactArgs(0),

		//nolint:contextcheck
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := repo.TenantFilter{Limit: limit, Offset: offset}

			for _, s := range statuses {
				status := model.TenantStatus(s)

				err := status.Validate()
				if err != nil {
					return err
				}

				filter.Statuses = append(filter.Statuses, status)
			}

			tenants, err := f.lc.List(cmd.Context(), filter)
			if err != nil {
				cmd.PrintErrf("Failed to list tenants: %v\n", err)
				return err
			}

			return printJSON(cmd, tenants)
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Tenant status filter")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of tenants") //nolint:mnd
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of tenants to skip")
	cmd.SetContext(ctx)

	return cmd
}
