package auth

import (
	"context"
	"errors"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// ErrNoActor is returned when a request reaches a handler without an identity.
var ErrNoActor = errors.New("authentication required: no actor in context")

// WithActor stores the resolved actor in the context.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// GetActor returns the actor set by the auth middleware.
func GetActor(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(models.Actor)
	return actor, ok && actor.Valid()
}

// RequireActor returns the actor or ErrNoActor.
func RequireActor(ctx context.Context) (models.Actor, error) {
	actor, ok := GetActor(ctx)
	if !ok {
		return models.Actor{}, ErrNoActor
	}
	return actor, nil
}

// ActorFromClaims maps token claims onto an actor. Both halves are required.
func ActorFromClaims(claims *Claims) (models.Actor, error) {
	if claims == nil || claims.Subject == "" {
		return models.Actor{}, ErrMissingSubject
	}
	role := claims.RoleID()
	if role == "" {
		return models.Actor{}, ErrMissingRole
	}
	return models.Actor{ActorID: claims.Subject, RoleID: role}, nil
}
