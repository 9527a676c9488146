package model

// DeploymentStatus tracks one service deploy for one tenant.
type DeploymentStatus string

const (
	DeploymentPending   DeploymentStatus = "PENDING"
	DeploymentSucceeded DeploymentStatus = "SUCCEEDED"
	DeploymentFailed    DeploymentStatus = "FAILED"
)

// ServiceDeployment records the latest deploy trigger outcome of a service for
// a tenant. Failed rows make up the tenant's degraded services.
type ServiceDeployment struct {
	AutoTimeModel

	TenantID  string           `gorm:"type:varchar(255);primaryKey"`
	Service   string           `gorm:"type:varchar(255);primaryKey"`
	Status    DeploymentStatus `gorm:"type:varchar(50);not null"`
	LastError string           `gorm:"type:text;not null;default:''"`
}

func (ServiceDeployment) TableName() string   { return "public.tenant_service_deployments" }
func (ServiceDeployment) IsSharedModel() bool { return true }
