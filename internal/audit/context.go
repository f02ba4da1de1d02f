package audit

import "context"

type ctxKey int

const (
	corrIDKey ctxKey = iota
	actorKey
)

// WithCorrelationID attaches a request correlation id.
func WithCorrelationID(ctx context.Context, corrID string) context.Context {
	return context.WithValue(ctx, corrIDKey, corrID)
}

// CorrelationID returns the attached correlation id, or "".
func CorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(corrIDKey).(string)
	return v
}

// WithActor attaches the authenticated actor.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the attached actor, or "".
func ActorFrom(ctx context.Context) string {
	v, _ := ctx.Value(actorKey).(string)
	return v
}
