package authz

import (
	"context"
	"errors"
	"testing"

	"competition-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type grantKey struct {
	competitionID uint
	tenantID      uint
}

// fakeLookups is an in-memory Lookups implementation for engine tests.
type fakeLookups struct {
	tenants      map[uint]*model.Tenant
	users        map[uint]*model.User
	competitions map[uint]*model.Competition
	grants       map[grantKey]bool
	failWith     error
}

func newFakeLookups() *fakeLookups {
	return &fakeLookups{
		tenants:      map[uint]*model.Tenant{},
		users:        map[uint]*model.User{},
		competitions: map[uint]*model.Competition{},
		grants:       map[grantKey]bool{},
	}
}

func (f *fakeLookups) TenantByID(_ context.Context, id uint) (*model.Tenant, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	if t, ok := f.tenants[id]; ok {
		return t, nil
	}
	return nil, ErrNotFound
}

func (f *fakeLookups) UserByID(_ context.Context, id uint) (*model.User, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, ErrNotFound
}

func (f *fakeLookups) CompetitionByID(_ context.Context, id uint) (*model.Competition, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	if c, ok := f.competitions[id]; ok {
		return c, nil
	}
	return nil, ErrNotFound
}

func (f *fakeLookups) HasGrant(_ context.Context, competitionID, tenantID uint) (bool, error) {
	if f.failWith != nil {
		return false, f.failWith
	}
	return f.grants[grantKey{competitionID, tenantID}], nil
}

func uintPtr(v uint) *uint { return &v }

func rolePtr(r model.Role) *model.Role { return &r }

var (
	tenantA uint = 1
	tenantB uint = 2

	superuser = Caller{ID: 1, Role: model.RoleSuperuser}
	adminA    = Caller{ID: 2, TenantID: &tenantA, Role: model.RoleSchoolAdmin}
	adminB    = Caller{ID: 3, TenantID: &tenantB, Role: model.RoleSchoolAdmin}
	studentA  = Caller{ID: 4, TenantID: &tenantA, Role: model.RoleStudent}
	studentB  = Caller{ID: 5, TenantID: &tenantB, Role: model.RoleStudent}
)

func TestSuperuserBypassesEveryRule(t *testing.T) {
	e := NewEngine(newFakeLookups())

	kinds := []Kind{KindTenant, KindUser, KindCompetition, KindAllowedSchool}
	actions := []Action{ActionReadOne, ActionReadMany, ActionCreate, ActionUpdate, ActionDelete}

	for _, kind := range kinds {
		for _, action := range actions {
			d, err := e.Decide(context.Background(), Request{
				Caller: superuser,
				Action: action,
				Kind:   kind,
			})
			require.NoError(t, err)
			assert.Equal(t, EffectAllow, d.Effect, "kind=%s action=%s", kind, action)
		}
	}
}

func TestTenantRules(t *testing.T) {
	e := NewEngine(newFakeLookups())
	ctx := context.Background()

	ownTenant := &model.Tenant{ID: tenantA, Name: "North High"}
	otherTenant := &model.Tenant{ID: tenantB, Name: "South High"}

	t.Run("read own tenant allowed", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionReadOne, Kind: KindTenant, Target: ownTenant})
		require.NoError(t, err)
		assert.True(t, d.Allowed())
	})

	t.Run("read foreign tenant denied", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionReadOne, Kind: KindTenant, Target: otherTenant})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("list is filtered to own tenant row", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionReadMany, Kind: KindTenant})
		require.NoError(t, err)
		require.Equal(t, EffectAllowFiltered, d.Effect)
		filter, ok := d.Filter.(TenantRowFilter)
		require.True(t, ok)
		assert.Equal(t, tenantA, filter.TenantID)
	})

	t.Run("mutations are superuser only", func(t *testing.T) {
		for _, action := range []Action{ActionCreate, ActionUpdate, ActionDelete} {
			d, err := e.Decide(ctx, Request{Caller: adminA, Action: action, Kind: KindTenant, Target: ownTenant})
			require.NoError(t, err)
			assert.Equal(t, EffectDeny, d.Effect, "action=%s", action)
		}
	})
}

func TestUserReadRules(t *testing.T) {
	e := NewEngine(newFakeLookups())
	ctx := context.Background()

	self := &model.User{ID: studentA.ID, TenantID: &tenantA, Role: model.RoleStudent}
	classmate := &model.User{ID: 40, TenantID: &tenantA, Role: model.RoleStudent}
	foreign := &model.User{ID: 41, TenantID: &tenantB, Role: model.RoleStudent}

	d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionReadOne, Kind: KindUser, Target: self})
	require.NoError(t, err)
	assert.True(t, d.Allowed(), "self read")

	d, err = e.Decide(ctx, Request{Caller: studentA, Action: ActionReadOne, Kind: KindUser, Target: classmate})
	require.NoError(t, err)
	assert.Equal(t, EffectDeny, d.Effect, "students cannot read classmates")

	d, err = e.Decide(ctx, Request{Caller: adminA, Action: ActionReadOne, Kind: KindUser, Target: classmate})
	require.NoError(t, err)
	assert.True(t, d.Allowed(), "admin reads same-tenant user")

	d, err = e.Decide(ctx, Request{Caller: adminA, Action: ActionReadOne, Kind: KindUser, Target: foreign})
	require.NoError(t, err)
	assert.Equal(t, EffectDeny, d.Effect, "admin cannot read foreign user")
}

func TestUserListRules(t *testing.T) {
	e := NewEngine(newFakeLookups())
	ctx := context.Background()

	t.Run("full listing restricted", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionReadMany, Kind: KindUser, List: &ListQuery{}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("admin lists own tenant", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionReadMany, Kind: KindUser, List: &ListQuery{TenantID: &tenantA}})
		require.NoError(t, err)
		require.Equal(t, EffectAllowFiltered, d.Effect)
		filter, ok := d.Filter.(TenantScopeFilter)
		require.True(t, ok)
		assert.Equal(t, tenantA, filter.TenantID)
	})

	t.Run("student cannot list own tenant", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionReadMany, Kind: KindUser, List: &ListQuery{TenantID: &tenantA}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("admin cannot list foreign tenant", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionReadMany, Kind: KindUser, List: &ListQuery{TenantID: &tenantB}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})
}

func TestUserCreateRules(t *testing.T) {
	e := NewEngine(newFakeLookups())
	ctx := context.Background()

	t.Run("admin creates student in own tenant", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionCreate, Kind: KindUser,
			Target: &model.User{Email: "kid@north.example", TenantID: &tenantA, Role: model.RoleStudent}})
		require.NoError(t, err)
		assert.True(t, d.Allowed())
	})

	t.Run("admin cannot create in foreign tenant", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionCreate, Kind: KindUser,
			Target: &model.User{Email: "kid@south.example", TenantID: &tenantB, Role: model.RoleStudent}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("admin cannot create superuser", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionCreate, Kind: KindUser,
			Target: &model.User{Email: "root@example", TenantID: &tenantA, Role: model.RoleSuperuser}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("student cannot create", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionCreate, Kind: KindUser,
			Target: &model.User{Email: "kid@north.example", TenantID: &tenantA, Role: model.RoleStudent}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})
}

func TestUserUpdateRules(t *testing.T) {
	e := NewEngine(newFakeLookups())
	ctx := context.Background()

	self := &model.User{ID: studentA.ID, TenantID: &tenantA, Role: model.RoleStudent}

	t.Run("self update of plain fields allowed", func(t *testing.T) {
		email := "new@north.example"
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionUpdate, Kind: KindUser,
			Target: self, Update: &UserUpdate{Email: &email}})
		require.NoError(t, err)
		assert.True(t, d.Allowed())
	})

	t.Run("self role change denied regardless of other fields", func(t *testing.T) {
		email := "new@north.example"
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionUpdate, Kind: KindUser,
			Target: self, Update: &UserUpdate{Email: &email, Role: rolePtr(model.RoleSchoolAdmin)}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("self tenant change denied", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionUpdate, Kind: KindUser,
			Target: self, Update: &UserUpdate{TenantID: uintPtr(tenantB)}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("admin self update cannot change role either", func(t *testing.T) {
		adminSelf := &model.User{ID: adminA.ID, TenantID: &tenantA, Role: model.RoleSchoolAdmin}
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionUpdate, Kind: KindUser,
			Target: adminSelf, Update: &UserUpdate{Role: rolePtr(model.RoleSuperuser)}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("admin updates same-tenant student", func(t *testing.T) {
		target := &model.User{ID: 40, TenantID: &tenantA, Role: model.RoleStudent}
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionUpdate, Kind: KindUser,
			Target: target, Update: &UserUpdate{Role: rolePtr(model.RoleSchoolAdmin)}})
		require.NoError(t, err)
		assert.True(t, d.Allowed())
	})

	t.Run("admin cannot promote to superuser", func(t *testing.T) {
		target := &model.User{ID: 40, TenantID: &tenantA, Role: model.RoleStudent}
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionUpdate, Kind: KindUser,
			Target: target, Update: &UserUpdate{Role: rolePtr(model.RoleSuperuser)}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("admin cannot move user to another tenant", func(t *testing.T) {
		target := &model.User{ID: 40, TenantID: &tenantA, Role: model.RoleStudent}
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionUpdate, Kind: KindUser,
			Target: target, Update: &UserUpdate{TenantID: uintPtr(tenantB)}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("admin cannot touch superuser accounts", func(t *testing.T) {
		target := &model.User{ID: 90, TenantID: &tenantA, Role: model.RoleSuperuser}
		email := "x@example"
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionUpdate, Kind: KindUser,
			Target: target, Update: &UserUpdate{Email: &email}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})
}

func TestUserDeleteRules(t *testing.T) {
	e := NewEngine(newFakeLookups())
	ctx := context.Background()

	t.Run("self delete denied", func(t *testing.T) {
		self := &model.User{ID: adminA.ID, TenantID: &tenantA, Role: model.RoleSchoolAdmin}
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionDelete, Kind: KindUser, Target: self})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("admin deletes same-tenant student", func(t *testing.T) {
		target := &model.User{ID: 40, TenantID: &tenantA, Role: model.RoleStudent}
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionDelete, Kind: KindUser, Target: target})
		require.NoError(t, err)
		assert.True(t, d.Allowed())
	})

	t.Run("admin cannot delete foreign user", func(t *testing.T) {
		target := &model.User{ID: 41, TenantID: &tenantB, Role: model.RoleStudent}
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionDelete, Kind: KindUser, Target: target})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})
}

func TestCompetitionReadRules(t *testing.T) {
	lookups := newFakeLookups()
	e := NewEngine(lookups)
	ctx := context.Background()

	public := &model.Competition{ID: 10, TenantID: tenantB, Visibility: model.VisibilityPublic}
	private := &model.Competition{ID: 11, TenantID: tenantB, Visibility: model.VisibilityPrivate}
	restricted := &model.Competition{ID: 12, TenantID: tenantB, Visibility: model.VisibilityRestricted}
	lookups.grants[grantKey{restricted.ID, tenantA}] = true

	t.Run("public is readable by anyone", func(t *testing.T) {
		for _, caller := range []Caller{studentA, adminA, studentB, adminB} {
			d, err := e.Decide(ctx, Request{Caller: caller, Action: ActionReadOne, Kind: KindCompetition, Target: public})
			require.NoError(t, err)
			assert.True(t, d.Allowed(), "caller=%d", caller.ID)
		}
	})

	t.Run("private foreign competition denied", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionReadOne, Kind: KindCompetition, Target: private})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("private own competition allowed", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: studentB, Action: ActionReadOne, Kind: KindCompetition, Target: private})
		require.NoError(t, err)
		assert.True(t, d.Allowed())
	})

	t.Run("restricted with grant allowed", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionReadOne, Kind: KindCompetition, Target: restricted})
		require.NoError(t, err)
		assert.True(t, d.Allowed())
	})

	t.Run("restricted without grant denied", func(t *testing.T) {
		ungranted := &model.Competition{ID: 13, TenantID: tenantB, Visibility: model.VisibilityRestricted}
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionReadOne, Kind: KindCompetition, Target: ungranted})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})
}

func TestCompetitionListRules(t *testing.T) {
	e := NewEngine(newFakeLookups())
	ctx := context.Background()

	t.Run("list is filtered to accessible set", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionReadMany, Kind: KindCompetition})
		require.NoError(t, err)
		require.Equal(t, EffectAllowFiltered, d.Effect)
		filter, ok := d.Filter.(AccessibleCompetitionsFilter)
		require.True(t, ok)
		assert.Equal(t, tenantA, filter.TenantID)
	})

	t.Run("tenant mismatch on explicit listing denied", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionReadMany, Kind: KindCompetition, List: &ListQuery{TenantID: &tenantB}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("explicit own-tenant listing allowed", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionReadMany, Kind: KindCompetition, List: &ListQuery{TenantID: &tenantA}})
		require.NoError(t, err)
		assert.Equal(t, EffectAllowFiltered, d.Effect)
	})
}

func TestCompetitionWriteRules(t *testing.T) {
	e := NewEngine(newFakeLookups())
	ctx := context.Background()

	own := &model.Competition{ID: 20, TenantID: tenantA, Visibility: model.VisibilityPrivate}
	foreign := &model.Competition{ID: 21, TenantID: tenantB, Visibility: model.VisibilityPrivate}

	t.Run("admin creates in own tenant", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionCreate, Kind: KindCompetition,
			Target: &model.Competition{Title: "Regional Math Open", TenantID: tenantA}})
		require.NoError(t, err)
		assert.True(t, d.Allowed())
	})

	t.Run("admin cannot create for another tenant", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionCreate, Kind: KindCompetition,
			Target: &model.Competition{Title: "Regional Math Open", TenantID: tenantB}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("student cannot create", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionCreate, Kind: KindCompetition,
			Target: &model.Competition{Title: "Regional Math Open", TenantID: tenantA}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("admin updates own competition", func(t *testing.T) {
		title := "Renamed"
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionUpdate, Kind: KindCompetition,
			Target: own, Update: &CompetitionUpdate{Title: &title}})
		require.NoError(t, err)
		assert.True(t, d.Allowed())
	})

	t.Run("tenant move denied for any role", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionUpdate, Kind: KindCompetition,
			Target: own, Update: &CompetitionUpdate{TenantID: uintPtr(tenantB)}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("admin cannot update foreign competition", func(t *testing.T) {
		title := "Renamed"
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionUpdate, Kind: KindCompetition,
			Target: foreign, Update: &CompetitionUpdate{Title: &title}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("admin deletes own, not foreign", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionDelete, Kind: KindCompetition, Target: own})
		require.NoError(t, err)
		assert.True(t, d.Allowed())

		d, err = e.Decide(ctx, Request{Caller: adminA, Action: ActionDelete, Kind: KindCompetition, Target: foreign})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})
}

func TestGrantRules(t *testing.T) {
	lookups := newFakeLookups()
	e := NewEngine(lookups)
	ctx := context.Background()

	lookups.competitions[30] = &model.Competition{ID: 30, TenantID: tenantA, Visibility: model.VisibilityPrivate}
	lookups.competitions[31] = &model.Competition{ID: 31, TenantID: tenantB, Visibility: model.VisibilityRestricted}
	lookups.grants[grantKey{31, tenantA}] = true

	t.Run("owning admin may grant", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionCreate, Kind: KindAllowedSchool,
			Target: &model.AllowedSchool{CompetitionID: 30, TenantID: tenantB}})
		require.NoError(t, err)
		assert.True(t, d.Allowed())
	})

	t.Run("non-owning admin may not grant", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: adminB, Action: ActionCreate, Kind: KindAllowedSchool,
			Target: &model.AllowedSchool{CompetitionID: 30, TenantID: tenantB}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("student may not grant", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionCreate, Kind: KindAllowedSchool,
			Target: &model.AllowedSchool{CompetitionID: 30, TenantID: tenantB}})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})

	t.Run("missing competition surfaces not-found", func(t *testing.T) {
		_, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionCreate, Kind: KindAllowedSchool,
			Target: &model.AllowedSchool{CompetitionID: 999, TenantID: tenantB}})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("owning admin may revoke", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: adminA, Action: ActionDelete, Kind: KindAllowedSchool,
			Target: &model.AllowedSchool{CompetitionID: 30, TenantID: tenantB}})
		require.NoError(t, err)
		assert.True(t, d.Allowed())
	})

	t.Run("granted tenant may list grants of restricted competition", func(t *testing.T) {
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionReadMany, Kind: KindAllowedSchool,
			Target: lookups.competitions[31]})
		require.NoError(t, err)
		assert.True(t, d.Allowed())
	})

	t.Run("unrelated tenant may not list grants", func(t *testing.T) {
		other := &model.Competition{ID: 32, TenantID: tenantB, Visibility: model.VisibilityRestricted}
		d, err := e.Decide(ctx, Request{Caller: studentA, Action: ActionReadMany, Kind: KindAllowedSchool, Target: other})
		require.NoError(t, err)
		assert.Equal(t, EffectDeny, d.Effect)
	})
}

func TestStoreFailurePropagates(t *testing.T) {
	lookups := newFakeLookups()
	lookups.failWith = errors.New("connection reset")
	e := NewEngine(lookups)

	restricted := &model.Competition{ID: 12, TenantID: tenantB, Visibility: model.VisibilityRestricted}
	_, err := e.Decide(context.Background(), Request{
		Caller: studentA,
		Action: ActionReadOne,
		Kind:   KindCompetition,
		Target: restricted,
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestUnknownKindDenied(t *testing.T) {
	e := NewEngine(newFakeLookups())
	d, err := e.Decide(context.Background(), Request{Caller: studentA, Action: ActionReadOne, Kind: Kind("widget")})
	require.NoError(t, err)
	assert.Equal(t, EffectDeny, d.Effect)
}
