// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services and the audit publisher consume them
// without importing net/http. Tests inject them directly:
//
//	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.9", "test-agent")
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	endpointKey    struct{}
	requestDataKey struct{}
	actorIDKey     struct{}
	actorRoleKey   struct{}
	requestTimeKey struct{}
)

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a request correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Endpoint retrieves the request path (method + URL) from the context. The
// audit trail records it so access can be reconstructed per route.
func Endpoint(ctx context.Context) string {
	if ep, ok := ctx.Value(endpointKey{}).(string); ok {
		return ep
	}
	return ""
}

// WithEndpoint injects the request endpoint into the context.
func WithEndpoint(ctx context.Context, endpoint string) context.Context {
	return context.WithValue(ctx, endpointKey{}, endpoint)
}

// RequestData retrieves the serialized request shape (method, params, query)
// captured by middleware for the audit trail. Bodies are never captured.
func RequestData(ctx context.Context) string {
	if rd, ok := ctx.Value(requestDataKey{}).(string); ok {
		return rd
	}
	return ""
}

// WithRequestData injects the serialized request shape into the context.
func WithRequestData(ctx context.Context, data string) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

// ActorID retrieves the authenticated operator ID, or "anonymous" when the
// request came from an unauthenticated participant.
func ActorID(ctx context.Context) string {
	if id, ok := ctx.Value(actorIDKey{}).(string); ok && id != "" {
		return id
	}
	return "anonymous"
}

// ActorRole retrieves the authenticated operator role, defaulting to
// "participant" for unauthenticated requests.
func ActorRole(ctx context.Context) string {
	if role, ok := ctx.Value(actorRoleKey{}).(string); ok && role != "" {
		return role
	}
	return "participant"
}

// WithActor injects the authenticated operator identity into the context.
func WithActor(ctx context.Context, actorID, role string) context.Context {
	ctx = context.WithValue(ctx, actorIDKey{}, actorID)
	return context.WithValue(ctx, actorRoleKey{}, role)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests and for workers that need consistent time within a batch.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
