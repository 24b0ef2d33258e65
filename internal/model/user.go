package model

import (
	"time"

	"gorm.io/gorm"
)

// Role is the closed set of user roles. Unknown role strings are
// rejected at the API boundary, never stored.
type Role string

const (
	RoleStudent     Role = "student"
	RoleSchoolAdmin Role = "school_admin"
	RoleSuperuser   Role = "superuser"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleSchoolAdmin, RoleSuperuser:
		return true
	}
	return false
}

// User represents a platform account. Every user belongs to exactly
// one tenant, except superusers, which are tenant-agnostic platform
// administrators (TenantID stays nil for them).
type User struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Email     string         `json:"email" gorm:"type:varchar(100);uniqueIndex;not null"`
	Password  string         `json:"-" gorm:"type:varchar(255)"`
	TenantID  *uint          `json:"tenant_id,omitempty" gorm:"index"`
	Role      Role           `json:"role" gorm:"type:varchar(50);not null;default:'student'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Tenant *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}
