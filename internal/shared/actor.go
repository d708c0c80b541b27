package shared

import (
	"context"

	"github.com/google/uuid"
)

// Role is the coarse permission level of an acting user.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleManager, RoleStaff:
		return true
	}
	return false
}

// Actor identifies the user performing an operation. It is passed explicitly
// into every service call.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// IsOwner reports whether the actor holds the owner role.
func (a Actor) IsOwner() bool { return a.Role == RoleOwner }

// CanAdminister reports whether the actor may use administrative overrides.
func (a Actor) CanAdminister() bool { return a.Role == RoleOwner || a.Role == RoleManager }

// ErrNoActor is returned when an operation is invoked without an identified user.
var ErrNoActor = NewError(KindAuthorization, "no_actor", "You must be signed in")

// Require checks the actor is identified and holds one of roles (any role when empty).
func (a Actor) Require(roles ...Role) error {
	if a.ID == uuid.Nil || !a.Role.Valid() {
		return ErrNoActor
	}
	if len(roles) == 0 {
		return nil
	}
	for _, r := range roles {
		if a.Role == r {
			return nil
		}
	}
	return NewError(KindAuthorization, "role_required", "You do not have permission to perform this action")
}

type actorContextKey struct{}

// ContextWithActor stores the resolved actor in ctx for HTTP handlers.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor placed by the rbac middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
