package authz

import (
	"context"
	"errors"

	"competition-service/internal/model"
)

// ErrNotFound is returned by Lookups implementations when the target
// row does not exist. The engine propagates it unchanged so handlers
// answer 404 rather than 403.
var ErrNotFound = errors.New("not found")

// Lookups is the read access the engine needs to resolve ownership
// before a decision can be made (for example "does this competition
// belong to tenant X"). Implementations report missing rows with
// ErrNotFound.
type Lookups interface {
	TenantByID(ctx context.Context, id uint) (*model.Tenant, error)
	UserByID(ctx context.Context, id uint) (*model.User, error)
	CompetitionByID(ctx context.Context, id uint) (*model.Competition, error)
	HasGrant(ctx context.Context, competitionID, tenantID uint) (bool, error)
}
