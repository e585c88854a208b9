package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/resto_backend/appctx"
)

// Alias the shared context keys so callers only import utils.
var (
	ContextKeyBusinessId    = appctx.ContextKeyBusinessId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId

	ContextKeySkipTenantScope = appctx.ContextKeySkipTenantScope
)

func GetBusinessIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyBusinessId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetBusinessIdInContext(ctx context.Context, businessId string) context.Context {
	return appctx.Set(ctx, ContextKeyBusinessId, businessId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

// SetSkipTenantScopeInContext disables tenant scoping for the request.
// Use sparingly (internal ops only).
func SetSkipTenantScopeInContext(ctx context.Context, skip bool) context.Context {
	return appctx.Set(ctx, ContextKeySkipTenantScope, skip)
}
