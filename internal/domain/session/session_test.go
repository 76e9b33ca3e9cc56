package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionExpiry(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		expired   bool
		remaining time.Duration
	}{
		{name: "future", expiresAt: now.Add(time.Hour), expired: false, remaining: time.Hour},
		{name: "exactly now", expiresAt: now, expired: true, remaining: 0},
		{name: "past", expiresAt: now.Add(-time.Minute), expired: true, remaining: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{UserID: "u1", ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.expired, s.Expired(now))
			assert.Equal(t, tt.remaining, s.Remaining(now))
		})
	}
}

func TestSessionZeroExpiryNeverExpires(t *testing.T) {
	s := &Session{UserID: "u1"}
	assert.False(t, s.Expired(time.Now().Add(100*365*24*time.Hour)))
	assert.NoError(t, s.Validate(time.Now()))
}

func TestSessionValidate(t *testing.T) {
	now := time.Now()

	var nilSession *Session
	assert.ErrorIs(t, nilSession.Validate(now), ErrMissing)
	assert.ErrorIs(t, (&Session{}).Validate(now), ErrMissing)
	assert.ErrorIs(t, (&Session{UserID: "u", ExpiresAt: now.Add(-time.Second)}).Validate(now), ErrExpired)
	assert.NoError(t, (&Session{UserID: "u", ExpiresAt: now.Add(time.Second)}).Validate(now))
}

func TestSessionCanAccess(t *testing.T) {
	s := &Session{UserID: "u", RoomID: "room-a"}
	assert.True(t, s.CanAccess("room-a"))
	assert.False(t, s.CanAccess("room-b"))
	assert.False(t, (&Session{UserID: "u"}).CanAccess(""))
}

func TestContextRoundTrip(t *testing.T) {
	_, err := FromContext(context.Background())
	require.ErrorIs(t, err, ErrMissing)

	want := &Session{UserID: "u1", RoomID: "r1"}
	got, err := FromContext(WithSession(context.Background(), want))
	require.NoError(t, err)
	assert.Same(t, want, got)
}
