package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-evidence/internal/domain/session"
)

// Claims carried by a session token. Subject is the user ID.
type Claims struct {
	Email string `json:"email,omitempty"`
	Room  string `json:"room"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 session tokens and turns them into sessions.
type Authenticator struct {
	hmac   []byte
	issuer string
	now    func() time.Time
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{hmac: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for sess. The service only verifies tokens; Issue
// exists for operators and tests.
func (a *Authenticator) Issue(sess *session.Session) (string, error) {
	claims := &Claims{
		Email: sess.Email,
		Room:  sess.RoomID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  sess.UserID,
			Issuer:   a.issuer,
			IssuedAt: jwt.NewNumericDate(sess.IssuedAt),
		},
	}
	if sess.IssuedAt.IsZero() {
		claims.IssuedAt = jwt.NewNumericDate(a.now())
	}
	if !sess.ExpiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(sess.ExpiresAt)
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.hmac)
}

// Parse verifies tokenStr and returns the session it describes.
func (a *Authenticator) Parse(tokenStr string) (*session.Session, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return a.hmac, nil
	}, opts...)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, session.ErrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || c.Subject == "" {
		return nil, session.ErrMissing
	}
	s := &session.Session{UserID: c.Subject, Email: c.Email, RoomID: c.Room}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s, nil
}

// SessionAuth attaches the bearer token's session to the request context.
func SessionAuth(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			sess, err := a.Parse(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
			if err != nil {
				zap.L().Debug("rejected session token", zap.Error(err))
				msg := "bad token"
				if errors.Is(err, session.ErrExpired) {
					msg = "session expired"
				}
				http.Error(w, msg, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
		})
	}
}

// RequireRoom ensures the {room} URL parameter is valid and matches the
// session's room claim.
func RequireRoom(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		room := chi.URLParam(r, "room")
		if err := ValidateRoomID(room); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sess, err := session.FromContext(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if !sess.CanAccess(room) {
			http.Error(w, session.ErrRoomMismatch.Error(), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
