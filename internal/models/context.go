package models

import "context"

// Role is the capability an actor authenticates with
type Role string

const (
	RolePlayer   Role = "player"
	RoleReviewer Role = "reviewer"
	RoleFinance  Role = "finance"
	RoleAdmin    Role = "admin"
	RoleProvider Role = "provider"
	RoleSystem   Role = "system"
)

// Actor is the authenticated caller of an operation
type Actor struct {
	Id   string
	Role Role
}

func (a Actor) String() string {
	return string(a.Role) + ":" + a.Id
}

// IsStaff reports whether the actor is an operator rather than a player
func (a Actor) IsStaff() bool {
	switch a.Role {
	case RoleReviewer, RoleFinance, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

type actorContextKey struct{}

// WithActor attaches the authenticated actor to a context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor attached by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok && actor.Id != ""
}
