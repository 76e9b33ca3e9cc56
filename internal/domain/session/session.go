// Package session holds the authenticated caller of a request. A Session is
// passed explicitly through contexts instead of living in global state.
package session

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	// ErrMissing means no session was attached to the context.
	ErrMissing = errors.New("session missing")
	// ErrExpired means the session is past its expiry.
	ErrExpired = errors.New("session expired")
	// ErrRoomMismatch means the session is not allowed into the requested room.
	ErrRoomMismatch = errors.New("session not authorized for room")
)

// Session is the signed-in user.
type Session struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	RoomID    string    `json:"room_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer usable at now.
// A zero ExpiresAt never expires.
func (s *Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// Remaining returns how long the session is still valid, never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s.ExpiresAt.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Validate checks the session is complete and unexpired.
func (s *Session) Validate(now time.Time) error {
	if s == nil || s.UserID == "" {
		return ErrMissing
	}
	if s.Expired(now) {
		return ErrExpired
	}
	return nil
}

// CanAccess reports whether the session may act on room. An empty RoomID
// claim grants no room.
func (s *Session) CanAccess(room string) bool {
	return s != nil && s.RoomID != "" && s.RoomID == room
}

type ctxKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext extracts the session, or ErrMissing.
func FromContext(ctx context.Context) (*Session, error) {
	if s, ok := ctx.Value(ctxKey{}).(*Session); ok && s != nil {
		return s, nil
	}
	return nil, ErrMissing
}
