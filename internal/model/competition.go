package model

import (
	"time"

	"gorm.io/gorm"
)

// Visibility is the per-competition disclosure level.
//
//	public     - readable by any authenticated user
//	private    - readable by the owning tenant only
//	restricted - owning tenant plus tenants named by an AllowedSchool grant
type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityPrivate    Visibility = "private"
	VisibilityRestricted Visibility = "restricted"
)

// Valid reports whether v is one of the known visibility levels.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityRestricted:
		return true
	}
	return false
}

// Competition represents a competition owned by a tenant. TenantID is
// immutable once the row exists.
type Competition struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Title       string         `json:"title" gorm:"type:varchar(200);not null"`
	Description string         `json:"description,omitempty" gorm:"type:text"`
	Visibility  Visibility     `json:"visibility" gorm:"type:varchar(20);not null;default:'private'"`
	TenantID    uint           `json:"tenant_id" gorm:"index;not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	Tenant *Tenant `json:"-" gorm:"foreignKey:TenantID"`
}
