package actorctx

import (
	"context"

	"github.com/geocoder89/dinutri/internal/auth"
)

type ctxKey struct{}

func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

func From(ctx context.Context) (auth.Actor, bool) {
	v, ok := ctx.Value(ctxKey{}).(auth.Actor)

	return v, ok && v.ID != ""
}
