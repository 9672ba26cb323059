package access

import (
	"context"

	"github.com/bhadresh-123/phicore/internal/model"
)

type requestMetaKey struct{}

// WithRequestMeta attaches request metadata (method, path, correlation id,
// client ip) for the gate to copy into audit entries.
func WithRequestMeta(ctx context.Context, meta model.RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the attached request metadata, or a zero value.
func RequestMetaFrom(ctx context.Context) model.RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(model.RequestMeta)
	return meta
}
