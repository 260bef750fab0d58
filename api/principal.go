package api

import (
	"context"
	"strings"
)

type contextKey string

const principalContextKey contextKey = "api.principal"

// Principal identifies the authenticated caller for the duration of one
// request.
type Principal struct {
	ID string `json:"id"`
}

// Normalize trims the id and returns nil when nothing identifies the caller.
func Normalize(in *Principal) *Principal {
	if in == nil {
		return nil
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil
	}
	return &Principal{ID: id}
}

// WithPrincipal stores a normalized principal on context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	normalized := Normalize(p)
	if normalized == nil {
		return ctx
	}
	return context.WithValue(ctx, principalContextKey, normalized)
}

// PrincipalFromContext returns the principal previously attached to context.
func PrincipalFromContext(ctx context.Context) *Principal {
	if ctx == nil {
		return nil
	}
	v := ctx.Value(principalContextKey)
	p, ok := v.(*Principal)
	if !ok {
		return nil
	}
	return Normalize(p)
}
