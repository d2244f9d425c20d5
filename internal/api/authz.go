package api

import (
	"context"
	"fmt"

	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"
)

func actor(ctx context.Context) (models.Actor, error) {
	a, ok := models.ActorFromContext(ctx)
	if !ok {
		return models.Actor{}, store.ErrUnauthenticated
	}
	return a, nil
}

// requireRole admits the listed roles and admin.
func requireRole(ctx context.Context, roles ...models.Role) (models.Actor, error) {
	a, err := actor(ctx)
	if err != nil {
		return a, err
	}
	if a.Role == models.RoleAdmin {
		return a, nil
	}
	for _, r := range roles {
		if a.Role == r {
			return a, nil
		}
	}
	return a, fmt.Errorf("%w: role %s may not perform this action", store.ErrUnauthorized, a.Role)
}

// requirePlayer admits the player acting on their own behalf and admin.
func requirePlayer(ctx context.Context, playerId string) (models.Actor, error) {
	a, err := actor(ctx)
	if err != nil {
		return a, err
	}
	if a.Role == models.RoleAdmin || (a.Role == models.RolePlayer && a.Id == playerId) {
		return a, nil
	}
	return a, fmt.Errorf("%w: %s may not act for player %s", store.ErrUnauthorized, a, playerId)
}

// requireReader admits the player reading their own data and any staff role.
func requireReader(ctx context.Context, playerId string) (models.Actor, error) {
	a, err := actor(ctx)
	if err != nil {
		return a, err
	}
	if a.IsStaff() || (a.Role == models.RolePlayer && a.Id == playerId) {
		return a, nil
	}
	return a, fmt.Errorf("%w: %s may not read player %s", store.ErrUnauthorized, a, playerId)
}
