package domain

import (
	"context"
	"time"
)

type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}

// RateLimitKey scopes a limiter bucket to a route group and a caller. The actor id
// is preferred; the client ip is used for unauthenticated callers.
func RateLimitKey(scope, actorID, clientIP string) string {
	subject := actorID
	if subject == "" {
		subject = "ip:" + clientIP
	}
	return "vault:rl:" + scope + ":" + subject
}
