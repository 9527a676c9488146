package apierrors

import (
	"net/http"
	"slices"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/fanout"
	"github.com/openkcm/tenant-lifecycle/internal/jobs"
	"github.com/openkcm/tenant-lifecycle/internal/orchestrator"
	"github.com/openkcm/tenant-lifecycle/internal/patcher"
	"github.com/openkcm/tenant-lifecycle/internal/registry"
	"github.com/openkcm/tenant-lifecycle/internal/repo"
	ctxutils "github.com/openkcm/tenant-lifecycle/utils/context"
)

const (
	TenantNotFound      = "TENANT_NOT_FOUND"
	DuplicateRequest    = "DUPLICATE_REQUEST"
	InvalidTenantState  = "INVALID_TENANT_STATE"
	TenantClaimed       = "TENANT_CLAIMED"
	ServiceNotFound     = "SERVICE_NOT_FOUND"
	DeployFailed        = "DEPLOY_FAILED"
	GlobalDeployFailed  = "GLOBAL_DEPLOY_INCOMPLETE"
	GlobalDeployMissing = "GLOBAL_DEPLOY_UNAVAILABLE"
	NothingToRetrigger  = "NOTHING_TO_RETRIGGER"
	JobTimeout          = "JOB_TIMEOUT"
	ResourceNotFound    = "RESOURCE_NOT_FOUND"
)

type rule = errs.Rule[DetailedError]

var tenants = []rule{
	{
		Match: []error{registry.ErrInvalidRequest},
		Exposed: DetailedError{
			Code:    ValidationErr,
			Message: "Tenant request is invalid",
			Status:  http.StatusBadRequest,
		},
	},
	{
		Match: []error{registry.ErrUnknownTenant},
		Exposed: DetailedError{
			Code:    TenantNotFound,
			Message: "The requested tenant was not found",
			Status:  http.StatusNotFound,
		},
	},
	{
		Match: []error{registry.ErrDuplicateRequest},
		Exposed: DetailedError{
			Code:    DuplicateRequest,
			Message: "Tenant is already mid-lifecycle",
			Status:  http.StatusConflict,
		},
	},
	{
		Match: []error{registry.ErrInvalidState},
		Exposed: DetailedError{
			Code:    InvalidTenantState,
			Message: "Tenant is not in a valid state for the operation",
			Status:  http.StatusConflict,
		},
	},
	{
		Match: []error{registry.ErrClaimHeld},
		Exposed: DetailedError{
			Code:    TenantClaimed,
			Message: "Tenant is claimed by a running job",
			Status:  http.StatusConflict,
		},
	},
	{
		Match: []error{orchestrator.ErrNothingToRetrigger},
		Exposed: DetailedError{
			Code:    NothingToRetrigger,
			Message: "Tenant has no lifecycle step to re-trigger",
			Status:  http.StatusConflict,
		},
	},
	{
		Match: []error{jobs.ErrJobTimeout},
		Exposed: DetailedError{
			Code:    JobTimeout,
			Message: "Job timed out",
			Status:  http.StatusGatewayTimeout,
		},
	},
}

var resources = []rule{
	{
		Match: []error{repo.ErrNotFound},
		Exposed: DetailedError{
			Code:    ResourceNotFound,
			Message: "The requested tenant resource was not found",
			Status:  http.StatusNotFound,
		},
	},
	{
		Match: []error{ctxutils.ErrExtractTenantID},
		Exposed: DetailedError{
			Code:    ParamsErr,
			Message: "Request is not scoped to a tenant",
			Status:  http.StatusBadRequest,
		},
	},
}

var deploys = []rule{
	{
		Match: []error{fanout.ErrUnknownService},
		Exposed: DetailedError{
			Code:    ServiceNotFound,
			Message: "The requested service is not registered",
			Status:  http.StatusNotFound,
		},
	},
	{
		Match: []error{fanout.ErrDeployFailed},
		Exposed: DetailedError{
			Code:    DeployFailed,
			Message: "Service deploy failed",
			Status:  http.StatusBadGateway,
		},
	},
	{
		Match: []error{patcher.ErrGlobalDeployIncomplete},
		Exposed: DetailedError{
			Code:    GlobalDeployFailed,
			Message: "Some tenant namespaces could not be deployed",
			Status:  http.StatusBadGateway,
		},
	},
	{
		Match: []error{orchestrator.ErrGlobalDeployUnavailable},
		Exposed: DetailedError{
			Code:    GlobalDeployMissing,
			Message: "Global deploy is not configured",
			Status:  http.StatusNotImplemented,
		},
	},
}

var APIErrorMapper = errs.NewMapper(
	InternalServerErrorMessage().Error,
	slices.Concat(tenants, resources, deploys)...,
)

// FromError exposes err as an error response body.
func FromError(err error) ErrorMessage {
	return ErrorMessage{Error: APIErrorMapper.Transform(err)}
}
