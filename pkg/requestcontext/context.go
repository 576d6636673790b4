// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
//
//	custodianID := requestcontext.CustodianID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithCustodianID(ctx, "custodian-a")
package requestcontext

import (
	"context"
	"time"

	id "trustrails/pkg/domain"
)

type (
	custodianIDKey struct{}
	actorIDKey     struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

var (
	ContextKeyCustodianID = custodianIDKey{}
	ContextKeyActorID     = actorIDKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// CustodianID retrieves the authenticated custodian from the context.
func CustodianID(ctx context.Context) id.CustodianID {
	if v, ok := ctx.Value(ContextKeyCustodianID).(id.CustodianID); ok {
		return v
	}
	return ""
}

// WithCustodianID injects the authenticated custodian into the context.
func WithCustodianID(ctx context.Context, custodianID id.CustodianID) context.Context {
	return context.WithValue(ctx, ContextKeyCustodianID, custodianID)
}

// ActorID retrieves the acting user (a person at the custodian, or a system
// component such as the reconciliation service).
func ActorID(ctx context.Context) id.ActorID {
	if v, ok := ctx.Value(ContextKeyActorID).(id.ActorID); ok {
		return v
	}
	return ""
}

// WithActorID injects the acting user into the context.
func WithActorID(ctx context.Context, actorID id.ActorID) context.Context {
	return context.WithValue(ctx, ContextKeyActorID, actorID)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
