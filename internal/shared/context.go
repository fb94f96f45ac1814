package shared

import "context"

type contextKey string

const (
	actorContextKey      contextKey = "toolroom.actor"
	clientInfoContextKey contextKey = "toolroom.client_info"
)

// Actor identifies the authenticated principal for the current request.
type Actor struct {
	ID     int64
	Handle string
}

// ContextWithActor stores the actor in the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext retrieves the actor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(Actor)
	return actor, ok
}

// ClientInfo carries request metadata recorded alongside audit entries.
type ClientInfo struct {
	Address   string
	UserAgent string
	RequestID string
}

// ContextWithClientInfo stores client metadata in the context.
func ContextWithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoContextKey, info)
}

// ClientInfoFromContext retrieves client metadata, if any.
func ClientInfoFromContext(ctx context.Context) (ClientInfo, bool) {
	info, ok := ctx.Value(clientInfoContextKey).(ClientInfo)
	return info, ok
}
