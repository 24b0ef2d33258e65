package authz

import (
	"context"

	"competition-service/internal/model"
)

// rule is one row of the decision table. when reports whether the rule
// applies to the request (ownership lookups happen here, and their
// errors propagate); then produces the decision for a matched rule.
type rule struct {
	name string
	when func(ctx context.Context, e *Engine, req Request) (bool, error)
	then func(req Request) Decision
}

func always(context.Context, *Engine, Request) (bool, error) { return true, nil }

func local(match func(req Request) bool) func(context.Context, *Engine, Request) (bool, error) {
	return func(_ context.Context, _ *Engine, req Request) (bool, error) {
		return match(req), nil
	}
}

func allowIt(Request) Decision { return Allow() }

func denyWith(reason string) func(Request) Decision {
	return func(Request) Decision { return Deny(reason) }
}

// ruleTable holds the ordered rules per entity kind and action for
// non-superuser callers; superusers never reach it. First match wins
// and an exhausted list denies. This single table backs every route,
// replacing per-handler guard copies.
var ruleTable = map[Kind]map[Action][]rule{
	KindTenant: {
		ActionReadOne: {
			{
				name: "tenant_read_own",
				when: local(func(req Request) bool {
					t, ok := req.Target.(*model.Tenant)
					return ok && req.Caller.InTenant(t.ID)
				}),
				then: allowIt,
			},
			{name: "tenant_read_denied", when: always, then: denyWith("tenant not accessible")},
		},
		ActionReadMany: {
			{
				name: "tenant_list_own",
				when: local(func(req Request) bool { return req.Caller.TenantID != nil }),
				then: func(req Request) Decision {
					return AllowFiltered(TenantRowFilter{TenantID: *req.Caller.TenantID})
				},
			},
			{name: "tenant_list_denied", when: always, then: denyWith("tenant listing is restricted")},
		},
		ActionCreate: {
			{name: "tenant_manage_superuser_only", when: always, then: denyWith("only a superuser may manage tenants")},
		},
		ActionUpdate: {
			{name: "tenant_manage_superuser_only", when: always, then: denyWith("only a superuser may manage tenants")},
		},
		ActionDelete: {
			{name: "tenant_manage_superuser_only", when: always, then: denyWith("only a superuser may manage tenants")},
		},
	},

	KindUser: {
		ActionReadOne: {
			{
				name: "user_read_self",
				when: local(func(req Request) bool {
					u, ok := req.Target.(*model.User)
					return ok && u.ID == req.Caller.ID
				}),
				then: allowIt,
			},
			{
				name: "user_read_same_tenant_admin",
				when: local(func(req Request) bool {
					u, ok := req.Target.(*model.User)
					return ok && req.Caller.Role == model.RoleSchoolAdmin &&
						u.TenantID != nil && req.Caller.InTenant(*u.TenantID)
				}),
				then: allowIt,
			},
			{name: "user_read_denied", when: always, then: denyWith("user not accessible")},
		},
		ActionReadMany: {
			{
				name: "user_list_all_restricted",
				when: local(func(req Request) bool {
					return req.List == nil || req.List.TenantID == nil
				}),
				then: denyWith("full user listing is restricted"),
			},
			{
				name: "user_list_own_tenant",
				when: local(func(req Request) bool {
					return req.Caller.Role != model.RoleStudent && req.Caller.InTenant(*req.List.TenantID)
				}),
				then: func(req Request) Decision {
					return AllowFiltered(TenantScopeFilter{TenantID: *req.List.TenantID})
				},
			},
			{name: "user_list_denied", when: always, then: denyWith("cannot list users of another tenant")},
		},
		ActionCreate: {
			{
				name: "user_create_superuser_guard",
				when: local(func(req Request) bool {
					u, ok := req.Target.(*model.User)
					return ok && u.Role == model.RoleSuperuser
				}),
				then: denyWith("only a superuser may create superuser accounts"),
			},
			{
				name: "user_create_same_tenant_admin",
				when: local(func(req Request) bool {
					u, ok := req.Target.(*model.User)
					return ok && req.Caller.Role == model.RoleSchoolAdmin &&
						u.TenantID != nil && req.Caller.InTenant(*u.TenantID)
				}),
				then: allowIt,
			},
			{name: "user_create_denied", when: always, then: denyWith("insufficient privileges to create users")},
		},
		ActionUpdate: {
			{
				name: "user_update_self",
				when: local(func(req Request) bool {
					u, ok := req.Target.(*model.User)
					return ok && u.ID == req.Caller.ID
				}),
				then: func(req Request) Decision {
					upd, _ := req.Update.(*UserUpdate)
					if upd != nil && upd.Role != nil {
						return Deny("cannot change own role")
					}
					if upd != nil && upd.TenantID != nil {
						return Deny("cannot change own tenant")
					}
					return Allow()
				},
			},
			{
				name: "user_update_same_tenant_admin",
				when: local(func(req Request) bool {
					u, ok := req.Target.(*model.User)
					return ok && req.Caller.Role == model.RoleSchoolAdmin &&
						u.Role != model.RoleSuperuser &&
						u.TenantID != nil && req.Caller.InTenant(*u.TenantID)
				}),
				then: func(req Request) Decision {
					upd, _ := req.Update.(*UserUpdate)
					if upd != nil && upd.Role != nil && *upd.Role == model.RoleSuperuser {
						return Deny("only a superuser may grant the superuser role")
					}
					if upd != nil && upd.TenantID != nil && !req.Caller.InTenant(*upd.TenantID) {
						return Deny("cannot move user to another tenant")
					}
					return Allow()
				},
			},
			{name: "user_update_denied", when: always, then: denyWith("insufficient privileges to update this user")},
		},
		ActionDelete: {
			{
				name: "user_delete_self",
				when: local(func(req Request) bool {
					u, ok := req.Target.(*model.User)
					return ok && u.ID == req.Caller.ID
				}),
				then: denyWith("cannot delete own account"),
			},
			{
				name: "user_delete_same_tenant_admin",
				when: local(func(req Request) bool {
					u, ok := req.Target.(*model.User)
					return ok && req.Caller.Role == model.RoleSchoolAdmin &&
						u.Role != model.RoleSuperuser &&
						u.TenantID != nil && req.Caller.InTenant(*u.TenantID)
				}),
				then: allowIt,
			},
			{name: "user_delete_denied", when: always, then: denyWith("insufficient privileges to delete this user")},
		},
	},

	KindCompetition: {
		ActionReadOne: {
			{
				name: "competition_read_public",
				when: local(func(req Request) bool {
					c, ok := req.Target.(*model.Competition)
					return ok && c.Visibility == model.VisibilityPublic
				}),
				then: allowIt,
			},
			{
				name: "competition_read_own_tenant",
				when: local(func(req Request) bool {
					c, ok := req.Target.(*model.Competition)
					return ok && req.Caller.InTenant(c.TenantID)
				}),
				then: allowIt,
			},
			{
				name: "competition_read_granted",
				when: func(ctx context.Context, e *Engine, req Request) (bool, error) {
					c, ok := req.Target.(*model.Competition)
					if !ok || c.Visibility != model.VisibilityRestricted || req.Caller.TenantID == nil {
						return false, nil
					}
					return e.lookups.HasGrant(ctx, c.ID, *req.Caller.TenantID)
				},
				then: allowIt,
			},
			{name: "competition_read_denied", when: always, then: denyWith("competition not accessible")},
		},
		ActionReadMany: {
			{
				name: "competition_list_tenant_mismatch",
				when: local(func(req Request) bool {
					return req.List != nil && req.List.TenantID != nil && !req.Caller.InTenant(*req.List.TenantID)
				}),
				then: denyWith("cannot list competitions for another tenant"),
			},
			{
				name: "competition_list_accessible",
				when: local(func(req Request) bool { return req.Caller.TenantID != nil }),
				then: func(req Request) Decision {
					return AllowFiltered(AccessibleCompetitionsFilter{TenantID: *req.Caller.TenantID})
				},
			},
			{name: "competition_list_denied", when: always, then: denyWith("caller has no tenant context")},
		},
		ActionCreate: {
			{
				name: "competition_create_admin",
				when: local(func(req Request) bool { return req.Caller.Role == model.RoleSchoolAdmin }),
				then: func(req Request) Decision {
					c, ok := req.Target.(*model.Competition)
					if !ok || !req.Caller.InTenant(c.TenantID) {
						return Deny("competitions must be created in the caller's own tenant")
					}
					return Allow()
				},
			},
			{name: "competition_create_denied", when: always, then: denyWith("students cannot create competitions")},
		},
		ActionUpdate: {
			{
				name: "competition_update_tenant_immutable",
				when: local(func(req Request) bool {
					c, okT := req.Target.(*model.Competition)
					upd, okU := req.Update.(*CompetitionUpdate)
					return okT && okU && upd.TenantID != nil && *upd.TenantID != c.TenantID
				}),
				then: denyWith("competition tenant is immutable"),
			},
			{
				name: "competition_update_admin_own_tenant",
				when: local(func(req Request) bool {
					c, ok := req.Target.(*model.Competition)
					return ok && req.Caller.Role == model.RoleSchoolAdmin && req.Caller.InTenant(c.TenantID)
				}),
				then: allowIt,
			},
			{name: "competition_update_denied", when: always, then: denyWith("insufficient privileges to update this competition")},
		},
		ActionDelete: {
			{
				name: "competition_delete_admin_own_tenant",
				when: local(func(req Request) bool {
					c, ok := req.Target.(*model.Competition)
					return ok && req.Caller.Role == model.RoleSchoolAdmin && req.Caller.InTenant(c.TenantID)
				}),
				then: allowIt,
			},
			{name: "competition_delete_denied", when: always, then: denyWith("insufficient privileges to delete this competition")},
		},
	},

	KindAllowedSchool: {
		ActionReadMany: {
			{
				name: "grant_list_public_competition",
				when: local(func(req Request) bool {
					c, ok := req.Target.(*model.Competition)
					return ok && c.Visibility == model.VisibilityPublic
				}),
				then: allowIt,
			},
			{
				name: "grant_list_own_tenant",
				when: local(func(req Request) bool {
					c, ok := req.Target.(*model.Competition)
					return ok && req.Caller.InTenant(c.TenantID)
				}),
				then: allowIt,
			},
			{
				name: "grant_list_granted_tenant",
				when: func(ctx context.Context, e *Engine, req Request) (bool, error) {
					c, ok := req.Target.(*model.Competition)
					if !ok || c.Visibility != model.VisibilityRestricted || req.Caller.TenantID == nil {
						return false, nil
					}
					return e.lookups.HasGrant(ctx, c.ID, *req.Caller.TenantID)
				},
				then: allowIt,
			},
			{name: "grant_list_denied", when: always, then: denyWith("grants not accessible")},
		},
		ActionCreate: {
			{
				name: "grant_manage_owning_admin",
				when: grantOwningAdmin,
				then: allowIt,
			},
			{name: "grant_manage_denied", when: always, then: denyWith("only the owning school's admin may manage grants")},
		},
		ActionDelete: {
			{
				name: "grant_manage_owning_admin",
				when: grantOwningAdmin,
				then: allowIt,
			},
			{name: "grant_manage_denied", when: always, then: denyWith("only the owning school's admin may manage grants")},
		},
	},
}

// grantOwningAdmin matches a school_admin managing a grant on a
// competition their own tenant owns. The competition lookup happens
// here so a missing competition surfaces as ErrNotFound, not a deny.
func grantOwningAdmin(ctx context.Context, e *Engine, req Request) (bool, error) {
	g, ok := req.Target.(*model.AllowedSchool)
	if !ok || req.Caller.Role != model.RoleSchoolAdmin {
		return false, nil
	}
	comp, err := e.lookups.CompetitionByID(ctx, g.CompetitionID)
	if err != nil {
		return false, err
	}
	return req.Caller.InTenant(comp.TenantID), nil
}
