// Package ratelimit defines the shared sliding-window counter used by the
// protection gate. Implementations are interchangeable: the in-memory store
// serves a single process, the Redis store serves several.
package ratelimit

import (
	"context"
	"time"
)

// Counter records one hit for key and reports whether the caller is still
// within limit hits per window. A denied hit is not recorded.
type Counter interface {
	IncrementAndCheck(ctx context.Context, key string, window time.Duration, limit int) (bool, error)
}

// Key builds the counter key for a policy class and client IP.
func Key(class, ip string) string {
	return "rl:" + class + ":" + ip
}
