package model

import (
	"time"

	multitenancy "github.com/bartventer/gorm-multitenancy/v8"
)

// Tenant is the registry record of one tenant. Rows are never hard-deleted,
// a DELETED row stays behind as tombstone.
type Tenant struct {
	multitenancy.TenantModel
	AutoTimeModel

	ID           string       `gorm:"type:varchar(255);not null;unique"`
	CompanyName  string       `gorm:"type:varchar(255);not null;default:''"`
	AdminEmail   string       `gorm:"type:varchar(255);not null;default:''"`
	Tier         string       `gorm:"type:varchar(50);not null;default:''"`
	TenantConfig string       `gorm:"type:text;not null;default:''"`
	Status       TenantStatus `gorm:"type:varchar(50);not null"`
	FailedPhase  Phase        `gorm:"type:varchar(50);not null;default:''"`
	LastError    string       `gorm:"type:text;not null;default:''"`
	ClaimedUntil *time.Time
}

func (t Tenant) TableName() string   { return "public.tenants" }
func (t Tenant) IsSharedModel() bool { return true }

// ClaimExpired reports whether the in-progress claim on the tenant lapsed.
func (t *Tenant) ClaimExpired(now time.Time) bool {
	return t.ClaimedUntil == nil || !t.ClaimedUntil.After(now)
}

// Clone returns a copy detached from the original.
func (t *Tenant) Clone() *Tenant {
	c := *t
	if t.ClaimedUntil != nil {
		until := *t.ClaimedUntil
		c.ClaimedUntil = &until
	}

	return &c
}
