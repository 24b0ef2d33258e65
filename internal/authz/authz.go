package authz

import (
	"context"

	"competition-service/internal/model"
)

// Action identifies the operation being attempted against an entity.
type Action string

const (
	ActionReadOne  Action = "read_one"
	ActionReadMany Action = "read_many"
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
)

// Kind identifies the entity a decision is requested for.
type Kind string

const (
	KindTenant        Kind = "tenant"
	KindUser          Kind = "user"
	KindCompetition   Kind = "competition"
	KindAllowedSchool Kind = "allowed_school"
)

// Caller is the identity a decision is evaluated for, as resolved by
// the authentication layer. TenantID is nil for superusers.
type Caller struct {
	ID       uint
	TenantID *uint
	Role     model.Role
}

// InTenant reports whether the caller belongs to the given tenant.
func (c Caller) InTenant(tenantID uint) bool {
	return c.TenantID != nil && *c.TenantID == tenantID
}

// Effect is the outcome class of a decision.
type Effect int

const (
	EffectDeny Effect = iota
	EffectAllow
	EffectAllowFiltered
)

// String returns the effect label used in logs and metrics.
func (e Effect) String() string {
	switch e {
	case EffectAllow:
		return "allow"
	case EffectAllowFiltered:
		return "allow_filtered"
	default:
		return "deny"
	}
}

// Decision is the engine's answer for a single request. Deny carries a
// human-readable reason; AllowFiltered carries the row filter a list
// handler must apply.
type Decision struct {
	Effect Effect
	Reason string
	Filter Filter
}

// Allowed reports whether the request may proceed (with or without a
// row filter).
func (d Decision) Allowed() bool {
	return d.Effect != EffectDeny
}

// Allow builds an unconditional allow decision.
func Allow() Decision {
	return Decision{Effect: EffectAllow}
}

// Deny builds a deny decision with the given reason.
func Deny(reason string) Decision {
	return Decision{Effect: EffectDeny, Reason: reason}
}

// AllowFiltered builds an allow decision restricted by a row filter.
func AllowFiltered(f Filter) Decision {
	return Decision{Effect: EffectAllowFiltered, Filter: f}
}

// ListQuery qualifies a read_many request.
type ListQuery struct {
	// TenantID restricts the listing to a single tenant (users of a
	// tenant, competitions accessible to a school). Nil means "all".
	TenantID *uint
}

// UserUpdate is the proposed change set for a user update. Nil fields
// are left untouched.
type UserUpdate struct {
	Email    *string
	Password *string
	Role     *model.Role
	TenantID *uint
}

// CompetitionUpdate is the proposed change set for a competition
// update. Nil fields are left untouched. TenantID is carried only so
// the immutability check can reject it.
type CompetitionUpdate struct {
	Title       *string
	Description *string
	Visibility  *model.Visibility
	TenantID    *uint
}

// Request carries everything a decision depends on.
//
// Target is the existing row for read_one/update/delete and the
// proposed row for create. Update holds the proposed change set for
// update actions. List qualifies read_many actions.
type Request struct {
	Caller Caller
	Action Action
	Kind   Kind
	Target any
	Update any
	List   *ListQuery
}

// Engine evaluates access decisions against the rule tables. Each
// decision is a pure function of the caller and the target state at
// read time; the only state the engine holds is the lookup adapter it
// resolves ownership through.
type Engine struct {
	lookups Lookups
}

// NewEngine builds an engine over the given ownership lookups.
func NewEngine(l Lookups) *Engine {
	return &Engine{lookups: l}
}

// Decide evaluates a single request. Superusers bypass the rule tables
// unconditionally. For everyone else the ordered rule table for the
// requested kind and action is consulted, first match wins, and an
// exhausted table denies.
//
// A store failure during an ownership lookup is returned as an error,
// not a deny: ErrNotFound in particular must surface to the caller as
// not-found so that 404 and 403 are never conflated.
func (e *Engine) Decide(ctx context.Context, req Request) (Decision, error) {
	if req.Caller.Role == model.RoleSuperuser {
		return Allow(), nil
	}

	table, ok := ruleTable[req.Kind]
	if !ok {
		return Deny("unknown entity kind"), nil
	}

	for _, r := range table[req.Action] {
		matched, err := r.when(ctx, e, req)
		if err != nil {
			return Decision{}, err
		}
		if matched {
			return r.then(req), nil
		}
	}

	return Deny("operation not permitted"), nil
}

var defaultEngine *Engine

// Initialize sets up the package-level engine used by handlers.
func Initialize(l Lookups) {
	defaultEngine = NewEngine(l)
}

// Decide evaluates a request against the package-level engine.
func Decide(ctx context.Context, req Request) (Decision, error) {
	return defaultEngine.Decide(ctx, req)
}
