package authz

import (
	"fmt"

	"competition-service/internal/model"

	"gorm.io/gorm"
)

// Filter restricts the rows a read_many decision exposes. Scope is
// applied server-side to the list query; handlers never post-filter.
type Filter interface {
	Scope(db *gorm.DB) *gorm.DB
	Describe() string
}

// TenantRowFilter restricts the tenants table to the caller's own
// tenant row.
type TenantRowFilter struct {
	TenantID uint
}

func (f TenantRowFilter) Scope(db *gorm.DB) *gorm.DB {
	return db.Where("id = ?", f.TenantID)
}

func (f TenantRowFilter) Describe() string {
	return fmt.Sprintf("id = %d", f.TenantID)
}

// TenantScopeFilter restricts a tenant-owned table to rows owned by
// one tenant.
type TenantScopeFilter struct {
	TenantID uint
}

func (f TenantScopeFilter) Scope(db *gorm.DB) *gorm.DB {
	return db.Where("tenant_id = ?", f.TenantID)
}

func (f TenantScopeFilter) Describe() string {
	return fmt.Sprintf("tenant_id = %d", f.TenantID)
}

// AccessibleCompetitionsFilter restricts the competitions table to the
// set a school can access: every public competition, every competition
// the tenant owns, and every competition another tenant granted to it.
// The union is a set on the primary key, so no deduplication step is
// needed downstream.
type AccessibleCompetitionsFilter struct {
	TenantID uint
}

func (f AccessibleCompetitionsFilter) Scope(db *gorm.DB) *gorm.DB {
	granted := db.Session(&gorm.Session{NewDB: true}).
		Model(&model.AllowedSchool{}).
		Select("competition_id").
		Where("tenant_id = ?", f.TenantID)
	return db.Where("visibility = ? OR tenant_id = ? OR id IN (?)",
		model.VisibilityPublic, f.TenantID, granted)
}

func (f AccessibleCompetitionsFilter) Describe() string {
	return fmt.Sprintf("public or owned/granted to tenant %d", f.TenantID)
}
