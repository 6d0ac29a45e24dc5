package utils

import (
	"context"

	"github.com/google/uuid"
	"github.com/mmdatafocus/books_ledger/appctx"
)

var (
	ContextKeyChargeId      = appctx.ContextKeyChargeId
	ContextKeyOwnerId       = appctx.ContextKeyOwnerId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyUserName      = appctx.ContextKeyUserName
)

func GetChargeIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyChargeId)
}

func SetChargeIdInContext(ctx context.Context, chargeId string) context.Context {
	return appctx.Set(ctx, ContextKeyChargeId, chargeId)
}

func GetOwnerIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyOwnerId)
}

func SetOwnerIdInContext(ctx context.Context, ownerId string) context.Context {
	return appctx.Set(ctx, ContextKeyOwnerId, ownerId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

// EnsureCorrelationId returns ctx unchanged when it already carries a correlation id,
// otherwise a child context with a fresh one.
func EnsureCorrelationId(ctx context.Context) (context.Context, string) {
	if cid, ok := GetCorrelationIdFromContext(ctx); ok && cid != "" {
		return ctx, cid
	}
	cid := uuid.NewString()
	return SetCorrelationIdInContext(ctx, cid), cid
}
