// Package requestcontext carries request-scoped values that services and the
// audit recorder read without depending on net/http. Middleware writes them;
// the reconciler, retention sweeper and CLI build them by hand.
package requestcontext

import (
	"context"
	"time"

	id "civicdesk/pkg/domain"
)

type ctxKey int

const (
	keyActor ctxKey = iota
	keyClientIP
	keyUserAgent
	keyDevice
	keyRequestID
	keyRequestTime
)

// ActorInfo identifies the caller. A nil ID means anonymous; Name alone
// identifies a non-human process such as the CLI.
type ActorInfo struct {
	ID        id.UserID
	Name      string
	Role      string
	SessionID string
}

func (a ActorInfo) IsAnonymous() bool {
	return a.ID.IsNil()
}

// DeviceInfo is derived from the User-Agent by the device middleware.
type DeviceInfo struct {
	Browser string
	Type    string
	Model   string
}

func value[T any](ctx context.Context, key ctxKey) T {
	v, _ := ctx.Value(key).(T)
	return v
}

func Actor(ctx context.Context) ActorInfo { return value[ActorInfo](ctx, keyActor) }

func WithActor(ctx context.Context, actor ActorInfo) context.Context {
	return context.WithValue(ctx, keyActor, actor)
}

func UserID(ctx context.Context) id.UserID { return Actor(ctx).ID }

func ClientIP(ctx context.Context) string  { return value[string](ctx, keyClientIP) }
func UserAgent(ctx context.Context) string { return value[string](ctx, keyUserAgent) }

func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, keyClientIP, clientIP)
	return context.WithValue(ctx, keyUserAgent, userAgent)
}

func Device(ctx context.Context) DeviceInfo { return value[DeviceInfo](ctx, keyDevice) }

func WithDevice(ctx context.Context, d DeviceInfo) context.Context {
	return context.WithValue(ctx, keyDevice, d)
}

func RequestID(ctx context.Context) string { return value[string](ctx, keyRequestID) }

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// Now returns the time pinned by the request-time middleware, or the wall
// clock outside a request.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(keyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, keyRequestTime, t)
}
