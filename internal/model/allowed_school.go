package model

import "time"

// AllowedSchool is an explicit grant letting a non-owning tenant see a
// restricted competition. The (competition_id, tenant_id) pair is the
// whole identity of the grant; it has no lifecycle beyond itself.
//
// Writing a grant forces the competition's visibility to restricted.
// Deleting a grant does not revert visibility.
type AllowedSchool struct {
	CompetitionID uint      `json:"competition_id" gorm:"primaryKey;autoIncrement:false"`
	TenantID      uint      `json:"tenant_id" gorm:"primaryKey;autoIncrement:false"`
	CreatedAt     time.Time `json:"created_at"`

	Competition *Competition `json:"-" gorm:"foreignKey:CompetitionID"`
	Tenant      *Tenant      `json:"-" gorm:"foreignKey:TenantID"`
}
