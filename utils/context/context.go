package context

import (
	"context"
	"errors"

	"github.com/bartventer/gorm-multitenancy/middleware/nethttp/v8"
	"github.com/google/uuid"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
)

var (
	ErrExtractTenantID = errors.New("could not extract tenant ID from context")
	ErrGetRequestID    = errors.New("no requestID found in context")
)

type Opt func(ctx context.Context) context.Context

//nolint:fatcontext
func New(ctx context.Context, opts ...Opt) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	for _, opt := range opts {
		ctx = opt(ctx)
	}

	return ctx
}

// ExtractTenantID returns the tenant the pooled-table queries are scoped to.
func ExtractTenantID(ctx context.Context) (string, error) {
	tenantID, ok := ctx.Value(nethttp.TenantKey).(string)
	if !ok || tenantID == "" {
		return "", errs.Wrap(ErrExtractTenantID, nethttp.ErrTenantInvalid)
	}

	return tenantID, nil
}

func CreateTenantContext(ctx context.Context, tenantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, nethttp.TenantKey, tenantID)
}

func WithTenant(tenantID string) Opt {
	return func(ctx context.Context) context.Context {
		return CreateTenantContext(ctx, tenantID)
	}
}

type key string

const requestID = key("requestID")

func InjectRequestID(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestID, uuid.NewString())
}

// WithRequestIDValue carries an externally assigned request ID.
func WithRequestIDValue(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestID, id)
}

func WithRequestID() Opt {
	return InjectRequestID
}

func GetRequestID(ctx context.Context) (string, error) {
	requestID, ok := ctx.Value(requestID).(string)
	if !ok || requestID == "" {
		return "", ErrGetRequestID
	}

	return requestID, nil
}
