// Package handlers serves the tenant intake API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/openkcm/tenant-lifecycle/internal/api/write"
	"github.com/openkcm/tenant-lifecycle/internal/apierrors"
	"github.com/openkcm/tenant-lifecycle/internal/event"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	"github.com/openkcm/tenant-lifecycle/internal/model"
	"github.com/openkcm/tenant-lifecycle/internal/patcher"
	"github.com/openkcm/tenant-lifecycle/internal/registry"
	"github.com/openkcm/tenant-lifecycle/internal/repo"
	"github.com/openkcm/tenant-lifecycle/utils/sanitise"
)

const (
	TenantPathParam  = "tenantId"
	ServicePathParam = "service"

	defaultListLimit = 100
)

type TenantService interface {
	Onboard(ctx context.Context, req registry.TenantRequest) (*model.Tenant, error)
	Offboard(ctx context.Context, tenantID string) (*model.Tenant, error)
	Retrigger(ctx context.Context, tenantID string) (event.LifecycleEvent, error)
	TriggerDeploy(ctx context.Context, tenantID, service string) error
	DeployAll(ctx context.Context, service string) (patcher.Result, error)
	Get(ctx context.Context, tenantID string) (*model.Tenant, error)
	List(ctx context.Context, filter repo.TenantFilter) ([]*model.Tenant, error)
	Deployments(ctx context.Context, tenantID string) ([]*model.ServiceDeployment, error)
	DegradedServices(ctx context.Context, tenantID string) ([]string, error)
}

type OnboardRequest struct {
	TenantID    string `json:"tenantId"`
	CompanyName string `json:"companyName"`
	AdminEmail  string `json:"adminEmail"`
	Tier        string `json:"tier"`
}

type Tenant struct {
	TenantID         string       `json:"tenantId"`
	CompanyName      string       `json:"companyName"`
	AdminEmail       string       `json:"adminEmail"`
	Tier             string       `json:"tier"`
	Status           string       `json:"status"`
	FailedPhase      string       `json:"failedPhase,omitempty"`
	LastError        string       `json:"lastError,omitempty"`
	TenantConfig     string       `json:"tenantConfig,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
	Deployments      []Deployment `json:"deployments,omitempty"`
	DegradedServices []string     `json:"degradedServices,omitempty"`
}

type Deployment struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	LastError string    `json:"lastError,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type TenantList struct {
	Tenants []Tenant `json:"tenants"`
}

type Triggered struct {
	TenantID string `json:"tenantId"`
	Topic    string `json:"topic"`
}

type GlobalDeploy struct {
	Service    string            `json:"service"`
	Namespaces int               `json:"namespaces"`
	Applied    []string          `json:"applied"`
	Failed     map[string]string `json:"failed,omitempty"`
}

type Tenants struct {
	svc TenantService
}

func NewTenants(svc TenantService) *Tenants {
	return &Tenants{svc: svc}
}

func (h *Tenants) Onboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body OnboardRequest

	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		log.Warn(ctx, "Undecodable onboarding request", log.ErrorAttr(err))
		write.ErrorResponse(ctx, w, apierrors.JSONDecodeErrorMessage())

		return
	}

	err = sanitise.Strings(&body)
	if err != nil {
		log.Warn(ctx, "Unsafe onboarding request", log.ErrorAttr(err))
		write.ErrorResponse(ctx, w, apierrors.ParamsErrorMessage(err.Error()))

		return
	}

	tenant, err := h.svc.Onboard(ctx, registry.TenantRequest(body))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	write.JSON(ctx, w, http.StatusAccepted, toTenant(tenant))
}

func (h *Tenants) Offboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, err := h.svc.Offboard(ctx, r.PathValue(TenantPathParam))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	write.JSON(ctx, w, http.StatusAccepted, toTenant(tenant))
}

func (h *Tenants) Retrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	e, err := h.svc.Retrigger(ctx, r.PathValue(TenantPathParam))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	write.JSON(ctx, w, http.StatusAccepted, Triggered{TenantID: e.TenantID, Topic: e.Topic()})
}

func (h *Tenants) TriggerDeploy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := r.PathValue(TenantPathParam)
	service := r.PathValue(ServicePathParam)

	err := h.svc.TriggerDeploy(ctx, tenantID, service)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	write.JSON(ctx, w, http.StatusAccepted, Triggered{
		TenantID: tenantID,
		Topic:    event.NewDeployRequest(service, tenantID).Topic(),
	})
}

// DeployAll answers with the per-namespace outcome. A partial failure is
// reported with the error status and the same body.
func (h *Tenants) DeployAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := h.svc.DeployAll(ctx, r.PathValue(ServicePathParam))
	if err != nil && len(res.Failed) == 0 {
		writeError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if err != nil {
		status = apierrors.FromError(err).Error.Status
	}

	write.JSON(ctx, w, status, toGlobalDeploy(res))
}

func (h *Tenants) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := r.PathValue(TenantPathParam)

	tenant, err := h.svc.Get(ctx, tenantID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	deployments, err := h.svc.Deployments(ctx, tenantID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	degraded, err := h.svc.DegradedServices(ctx, tenantID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	resp := toTenant(tenant)
	resp.DegradedServices = degraded

	for _, d := range deployments {
		resp.Deployments = append(resp.Deployments, Deployment{
			Service:   d.Service,
			Status:    string(d.Status),
			LastError: d.LastError,
			UpdatedAt: d.UpdatedAt,
		})
	}

	write.JSON(ctx, w, http.StatusOK, resp)
}

// List filters by any number of status query values.
func (h *Tenants) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parseFilter(r)
	if err != nil {
		write.ErrorResponse(ctx, w, apierrors.ParamsErrorMessage(err.Error()))
		return
	}

	tenants, err := h.svc.List(ctx, filter)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	resp := TenantList{Tenants: make([]Tenant, 0, len(tenants))}
	for _, t := range tenants {
		resp.Tenants = append(resp.Tenants, toTenant(t))
	}

	write.JSON(ctx, w, http.StatusOK, resp)
}

func parseFilter(r *http.Request) (repo.TenantFilter, error) {
	q := r.URL.Query()
	filter := repo.TenantFilter{Limit: defaultListLimit}

	for _, s := range q["status"] {
		status := model.TenantStatus(s)

		err := status.Validate()
		if err != nil {
			return repo.TenantFilter{}, err
		}

		filter.Statuses = append(filter.Statuses, status)
	}

	var err error

	if v := q.Get("limit"); v != "" {
		filter.Limit, err = strconv.Atoi(v)
		if err != nil || filter.Limit < 1 {
			return repo.TenantFilter{}, ErrInvalidLimit
		}
	}

	if v := q.Get("offset"); v != "" {
		filter.Offset, err = strconv.Atoi(v)
		if err != nil || filter.Offset < 0 {
			return repo.TenantFilter{}, ErrInvalidOffset
		}
	}

	return filter, nil
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	msg := apierrors.FromError(err)

	if msg.Error.Status >= http.StatusInternalServerError {
		log.Error(ctx, "Intake request failed", err)
	} else {
		log.Debug(ctx, "Intake request rejected", log.ErrorAttr(err))
	}

	write.ErrorResponse(ctx, w, msg)
}

func toTenant(t *model.Tenant) Tenant {
	return Tenant{
		TenantID:     t.ID,
		CompanyName:  t.CompanyName,
		AdminEmail:   t.AdminEmail,
		Tier:         t.Tier,
		Status:       t.Status.String(),
		FailedPhase:  string(t.FailedPhase),
		LastError:    t.LastError,
		TenantConfig: t.TenantConfig,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func toGlobalDeploy(res patcher.Result) GlobalDeploy {
	out := GlobalDeploy{
		Service:    res.Service,
		Namespaces: res.Namespaces,
		Applied:    res.Applied,
	}

	if out.Applied == nil {
		out.Applied = []string{}
	}

	for _, f := range res.Failed {
		if out.Failed == nil {
			out.Failed = make(map[string]string, len(res.Failed))
		}

		out.Failed[f.Namespace] = f.Err.Error()
	}

	return out
}
