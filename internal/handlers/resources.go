package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/openkcm/tenant-lifecycle/internal/api/write"
	"github.com/openkcm/tenant-lifecycle/internal/apierrors"
	"github.com/openkcm/tenant-lifecycle/internal/log"
	"github.com/openkcm/tenant-lifecycle/internal/model"
	"github.com/openkcm/tenant-lifecycle/utils/sanitise"
)

const ResourcePathParam = "resourceId"

// ResourceService is the pooled-table view of the tenant the request context
// is scoped to.
type ResourceService interface {
	PutResource(ctx context.Context, kind string, data json.RawMessage) (*model.TenantResource, error)
	GetResource(ctx context.Context, id uuid.UUID) (*model.TenantResource, error)
	ListResources(ctx context.Context) ([]*model.TenantResource, error)
	DeleteResource(ctx context.Context, id uuid.UUID) error
}

type ResourceRequest struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data" sanitise:"false"`
}

type Resource struct {
	ResourceID string          `json:"resourceId"`
	TenantID   string          `json:"tenantId"`
	Kind       string          `json:"kind"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type ResourceList struct {
	Resources []Resource `json:"resources"`
}

// Resources serves the tenant resource routes. Every route must run behind
// middleware.TenantFromPath.
type Resources struct {
	svc ResourceService
}

func NewResources(svc ResourceService) *Resources {
	return &Resources{svc: svc}
}

func (h *Resources) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body ResourceRequest

	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		log.Warn(ctx, "Undecodable resource request", log.ErrorAttr(err))
		write.ErrorResponse(ctx, w, apierrors.JSONDecodeErrorMessage())

		return
	}

	err = sanitise.Strings(&body)
	if err != nil {
		log.Warn(ctx, "Unsafe resource request", log.ErrorAttr(err))
		write.ErrorResponse(ctx, w, apierrors.ParamsErrorMessage(err.Error()))

		return
	}

	resource, err := h.svc.PutResource(ctx, body.Kind, body.Data)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	write.JSON(ctx, w, http.StatusCreated, toResource(resource))
}

func (h *Resources) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resources, err := h.svc.ListResources(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	resp := ResourceList{Resources: make([]Resource, 0, len(resources))}
	for _, res := range resources {
		resp.Resources = append(resp.Resources, toResource(res))
	}

	write.JSON(ctx, w, http.StatusOK, resp)
}

func (h *Resources) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := resourceID(w, r)
	if !ok {
		return
	}

	resource, err := h.svc.GetResource(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	write.JSON(ctx, w, http.StatusOK, toResource(resource))
}

func (h *Resources) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := resourceID(w, r)
	if !ok {
		return
	}

	err := h.svc.DeleteResource(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func resourceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(ResourcePathParam))
	if err != nil {
		write.ErrorResponse(r.Context(), w, apierrors.ParamsErrorMessage(ErrInvalidResourceID.Error()))
		return uuid.Nil, false
	}

	return id, true
}

func toResource(r *model.TenantResource) Resource {
	return Resource{
		ResourceID: r.ResourceID.String(),
		TenantID:   r.TenantID,
		Kind:       r.Kind,
		Data:       r.Data,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}
