package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// TenantResource is a row of the pooled table. The tenant id is part of the
// key and every query must filter on it.
type TenantResource struct {
	AutoTimeModel

	TenantID   string          `gorm:"type:varchar(255);primaryKey"`
	ResourceID uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Kind       string          `gorm:"type:varchar(100);not null"`
	Data       json.RawMessage `gorm:"type:jsonb;not null"`
}

func (TenantResource) TableName() string   { return "public.tenant_resources" }
func (TenantResource) IsSharedModel() bool { return true }
