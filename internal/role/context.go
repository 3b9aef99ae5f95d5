package role

import "context"

type actorKey struct{}

// ContextWithActor stores the authenticated actor for downstream handlers.
func ContextWithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns nil when the request is unauthenticated.
func ActorFromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorKey{}).(Actor)
	if !ok {
		return nil
	}
	return &a
}
