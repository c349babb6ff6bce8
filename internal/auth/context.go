package auth

import "context"

type ctxKey string

const actorKey ctxKey = "auth_actor"

// ContextWithActor stores the verified actor in the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the authenticated actor from the context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	v, ok := ctx.Value(actorKey).(Actor)
	if !ok || v.ID == "" {
		return Actor{}, false
	}
	return v, true
}
