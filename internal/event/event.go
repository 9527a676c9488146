package event

import (
	"maps"
	"slices"
	"strings"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
)

// DetailType names one kind of lifecycle event.
type DetailType string

const (
	OnboardingRequest  DetailType = "ONBOARDING_REQUEST"
	ProvisionSuccess   DetailType = "PROVISION_SUCCESS"
	OffboardingRequest DetailType = "OFFBOARDING_REQUEST"
	DeprovisionSuccess DetailType = "DEPROVISION_SUCCESS"
	DeployRequest      DetailType = "DEPLOY_REQUEST"
)

func (d DetailType) String() string {
	return string(d)
}

// Wire field names.
const (
	FieldTenantID     = "tenantId"
	FieldTier         = "tier"
	FieldTenantName   = "tenantName"
	FieldEmail        = "email"
	FieldTenantStatus = "tenantStatus"
	FieldTenantConfig = "tenantConfig"
)

const topicSeparator = ":"

// LifecycleEvent is the envelope carried by the event bus. Every event belongs
// to exactly one tenant.
type LifecycleEvent struct {
	DetailType DetailType        `json:"detailType"`
	Service    string            `json:"service,omitempty"`
	TenantID   string            `json:"tenantId"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func New(detailType DetailType, tenantID string, fields map[string]string) LifecycleEvent {
	return LifecycleEvent{
		DetailType: detailType,
		TenantID:   tenantID,
		Fields:     maps.Clone(fields),
	}
}

// NewDeployRequest builds the per-service deploy trigger for a tenant.
func NewDeployRequest(service, tenantID string) LifecycleEvent {
	return LifecycleEvent{
		DetailType: DeployRequest,
		Service:    service,
		TenantID:   tenantID,
	}
}

// Topic is what consumers subscribe to. Deploy requests are addressed per
// service, every other type is its own topic.
func (e LifecycleEvent) Topic() string {
	return Topic(e.DetailType, e.Service)
}

func Topic(detailType DetailType, service string) string {
	if detailType == DeployRequest && service != "" {
		return string(detailType) + topicSeparator + service
	}

	return string(detailType)
}

// ParseTopic is the inverse of Topic.
func ParseTopic(topic string) (DetailType, string) {
	detailType, service, _ := strings.Cut(topic, topicSeparator)
	return DetailType(detailType), service
}

// DedupKey identifies the event for at-least-once delivery.
func (e LifecycleEvent) DedupKey() string {
	return e.Topic() + topicSeparator + e.TenantID
}

// Field returns a named wire field. The tenant id lives on the envelope.
func (e LifecycleEvent) Field(name string) (string, bool) {
	if name == FieldTenantID {
		return e.TenantID, e.TenantID != ""
	}

	v, ok := e.Fields[name]

	return v, ok
}

// Validate checks the event against the schema of its detail type.
func (e LifecycleEvent) Validate() error {
	schema, ok := Lookup(e.DetailType)
	if !ok {
		return errs.Wrapf(ErrUnknownDetailType, string(e.DetailType))
	}

	if e.TenantID == "" {
		return ErrMissingTenantID
	}

	if e.DetailType == DeployRequest && e.Service == "" {
		return ErrMissingService
	}

	var missing []string

	for _, name := range schema.Required {
		v, ok := e.Field(name)
		if !ok || v == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		slices.Sort(missing)
		return errs.Wrapf(ErrMissingField, strings.Join(missing, ","))
	}

	return nil
}
