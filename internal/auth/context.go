package auth

import (
	"context"

	"github.com/otcheredev/emergency-dispatch/internal/models"
)

type contextKey struct{}

// WithActor stores the authenticated actor on the context
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFrom extracts the authenticated actor from the context
func ActorFrom(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(contextKey{}).(models.Actor)
	return actor, ok
}
