package commands

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/openkcm/tenant-lifecycle/internal/async"
	"github.com/openkcm/tenant-lifecycle/internal/event"
	"github.com/openkcm/tenant-lifecycle/internal/model"
	"github.com/openkcm/tenant-lifecycle/internal/patcher"
	"github.com/openkcm/tenant-lifecycle/internal/registry"
	"github.com/openkcm/tenant-lifecycle/internal/repo"
)

// Lifecycle is the part of the orchestration core the CLI drives.
type Lifecycle interface {
	Onboard(ctx context.Context, req registry.TenantRequest) (*model.Tenant, error)
	Offboard(ctx context.Context, tenantID string) (*model.Tenant, error)
	Retrigger(ctx context.Context, tenantID string) (event.LifecycleEvent, error)
	RunDeploy(ctx context.Context, tenantID, service string) error
	DeployAll(ctx context.Context, service string) (patcher.Result, error)
	Get(ctx context.Context, tenantID string) (*model.Tenant, error)
	List(ctx context.Context, filter repo.TenantFilter) ([]*model.Tenant, error)
	Deployments(ctx context.Context, tenantID string) ([]*model.ServiceDeployment, error)
	DegradedServices(ctx context.Context, tenantID string) ([]string, error)
}

// Failures lists the lifecycle events the bus gave up on.
type Failures interface {
	ArchivedEvents(ctx context.Context, limit int) ([]async.ArchivedEvent, error)
}

type CommandFactory struct {
	lc       Lifecycle
	failures Failures
}

func NewCommandFactory(lc Lifecycle, failures Failures) *CommandFactory {
	return &CommandFactory{lc: lc, failures: failures}
}

// Commands returns every subcommand of the root command.
func (f *CommandFactory) Commands(ctx context.Context) []*cobra.Command {
	return []*cobra.Command{
		f.NewOnboardCmd(ctx),
		f.NewOffboardCmd(ctx),
		f.NewRetriggerCmd(ctx),
		f.NewTriggerBuildCmd(ctx),
		f.NewDeployAllCmd(ctx),
		f.NewGetTenantCmd(ctx),
		f.NewListTenantsCmd(ctx),
		f.NewFailuresCmd(ctx),
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	cmd.Println(string(out))

	return nil
}

func markRequired(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		err := cmd.MarkFlagRequired(name)
		if err != nil {
			cmd.PrintErrf("failed to mark flag '%s' as required: %v\n", name, err)
		}
	}
}
