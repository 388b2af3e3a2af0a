package domain

import (
	"fmt"
	"slices"
	"sync/atomic"
	"time"
)

// Authorization is a time-scoped grant permitting playback-loopback capture.
// It can be bound to a single session and becomes unusable once invalidated.
type Authorization struct {
	ID        string
	Subject   string
	Usages    []Usage
	IssuedAt  time.Time
	ExpiresAt time.Time

	claimed atomic.Bool
	revoked atomic.Bool
}

// Valid reports why the grant can no longer be used at now, or nil.
func (a *Authorization) Valid(now time.Time) error {
	if a == nil {
		return fmt.Errorf("%w: no capture grant", ErrAuthorization)
	}
	if a.revoked.Load() {
		return ErrAuthorizationRevoked
	}
	if !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt) {
		return ErrAuthorizationExpired
	}
	return nil
}

func (a *Authorization) Permits(u Usage) bool {
	return a != nil && slices.Contains(a.Usages, u)
}

// Claim binds the grant to a caller. Only the first call succeeds.
func (a *Authorization) Claim() bool {
	return a.claimed.CompareAndSwap(false, true)
}

// Invalidate revokes the grant permanently.
func (a *Authorization) Invalidate() {
	a.revoked.Store(true)
}
