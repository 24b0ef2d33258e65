package store

import (
	"context"
	"errors"

	"competition-service/internal/authz"
	"competition-service/internal/model"

	"gorm.io/gorm"
)

// Store adapts gorm to the decision engine's ownership lookups and
// carries the one write sequence that must stay transactional: grant
// creation together with the competition visibility flip.
type Store struct {
	db *gorm.DB
}

// New builds a store over the given database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return authz.ErrNotFound
	}
	return err
}

// TenantByID fetches a tenant, reporting authz.ErrNotFound for a
// missing row.
func (s *Store) TenantByID(ctx context.Context, id uint) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, id).Error; err != nil {
		return nil, translate(err)
	}
	return &tenant, nil
}

// UserByID fetches a user, reporting authz.ErrNotFound for a missing
// row.
func (s *Store) UserByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// CompetitionByID fetches a competition, reporting authz.ErrNotFound
// for a missing row.
func (s *Store) CompetitionByID(ctx context.Context, id uint) (*model.Competition, error) {
	var comp model.Competition
	if err := s.db.WithContext(ctx).First(&comp, id).Error; err != nil {
		return nil, translate(err)
	}
	return &comp, nil
}

// HasGrant reports whether an AllowedSchool grant exists for the given
// competition and tenant.
func (s *Store) HasGrant(ctx context.Context, competitionID, tenantID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.AllowedSchool{}).
		Where("competition_id = ? AND tenant_id = ?", competitionID, tenantID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateGrant inserts an AllowedSchool grant and forces the referenced
// competition's visibility to restricted in the same transaction, so a
// concurrent reader never observes one write without the other.
//
// Creating an existing grant is a no-op: the stored grant is returned
// with created=false and the visibility flip is not applied again.
func (s *Store) CreateGrant(ctx context.Context, competitionID, tenantID uint) (*model.AllowedSchool, bool, error) {
	var grant model.AllowedSchool
	created := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("competition_id = ? AND tenant_id = ?", competitionID, tenantID).
			First(&grant).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		grant = model.AllowedSchool{CompetitionID: competitionID, TenantID: tenantID}
		if err := tx.Create(&grant).Error; err != nil {
			return err
		}
		created = true

		return tx.Model(&model.Competition{}).
			Where("id = ?", competitionID).
			Update("visibility", model.VisibilityRestricted).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &grant, created, nil
}

// DeleteGrant removes an AllowedSchool grant. Visibility is left
// untouched: revoking the last grant does not revert the competition
// to private or public. Reports authz.ErrNotFound when no grant
// existed.
func (s *Store) DeleteGrant(ctx context.Context, competitionID, tenantID uint) error {
	result := s.db.WithContext(ctx).
		Where("competition_id = ? AND tenant_id = ?", competitionID, tenantID).
		Delete(&model.AllowedSchool{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return authz.ErrNotFound
	}
	return nil
}

// GrantsForCompetition lists the grants attached to one competition.
func (s *Store) GrantsForCompetition(ctx context.Context, competitionID uint) ([]model.AllowedSchool, error) {
	var grants []model.AllowedSchool
	err := s.db.WithContext(ctx).
		Where("competition_id = ?", competitionID).
		Find(&grants).Error
	return grants, err
}
