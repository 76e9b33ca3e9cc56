package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bryanwahyu/automaton-evidence/internal/domain/session"
)

func TestRateLimitPerUser(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RateLimitMiddleware(2, 0)(ok)

	do := func(user, path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if user != "" {
			req = req.WithContext(session.WithSession(req.Context(), &session.Session{UserID: user}))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do("alice", "/v1/x"))
	assert.Equal(t, http.StatusNoContent, do("alice", "/v1/x"))
	assert.Equal(t, http.StatusTooManyRequests, do("alice", "/v1/x"))
	assert.Equal(t, http.StatusNoContent, do("bob", "/v1/x"))
	assert.Equal(t, http.StatusNoContent, do("alice", "/health"))
}

func TestRateKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "ip:10.0.0.7", rateKey(req))

	req = req.WithContext(session.WithSession(req.Context(), &session.Session{UserID: "u1"}))
	assert.Equal(t, "user:u1", rateKey(req))
}
