package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of an admission check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is the admission-control contract. Implementations must be safe
// for concurrent checks on the same key; atomic accounting is delegated to
// the backing store.
type Limiter interface {
	Allow(ctx context.Context, userID string) (Result, error)
}
