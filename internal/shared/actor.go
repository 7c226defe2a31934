package shared

import "context"

// Role enumerates privilege tiers recognised by the core.
type Role string

const (
	// RoleStaff may record counts and post sales-driven movements.
	RoleStaff Role = "staff"
	// RoleManager may approve adjustments and manage stock-takes.
	RoleManager Role = "manager"
	// RoleAdmin has every manager privilege.
	RoleAdmin Role = "admin"
)

// Valid reports whether the role is one of the known tiers.
func (r Role) Valid() bool {
	switch r {
	case RoleStaff, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// CanApprove reports whether the role may approve stock adjustments.
func (r Role) CanApprove() bool {
	return r == RoleManager || r == RoleAdmin
}

// Actor identifies who performs an operation. Authentication happens
// upstream; the core only attributes and authorises.
type Actor struct {
	ID   int64
	Name string
	Role Role
}

// Known reports whether the actor carries a usable identity.
func (a Actor) Known() bool {
	return a.ID != 0
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context, zero value when absent.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
