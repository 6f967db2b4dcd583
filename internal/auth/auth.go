// Package auth issues and verifies the HS256 bearer tokens that guard the
// Riddler HTTP API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mesh-intelligence/riddler/pkg/types"
)

// Issuer is the iss claim of every token.
const Issuer = "riddler"

type contextKey string

const contextKeySubject contextKey = "subject"

// Authenticator signs and checks tokens with a shared secret.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// New returns an Authenticator for secret, which must not be empty.
func New(secret []byte) (*Authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth secret must not be empty")
	}
	return &Authenticator{secret: secret, now: time.Now}, nil
}

// Issue returns a signed token for subject. A zero ttl issues a token that
// never expires.
func (a *Authenticator) Issue(subject string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:   Issuer,
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses token and returns its subject.
func (a *Authenticator) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrUnauthorized, err)
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid bearer token. fail writes the
// rejection; it receives an error wrapping types.ErrUnauthorized.
func (a *Authenticator) Middleware(fail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				fail(w, r, fmt.Errorf("%w: missing bearer token", types.ErrUnauthorized))
				return
			}
			subject, err := a.Verify(token)
			if err != nil {
				fail(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), contextKeySubject, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Subject returns the authenticated subject of a request context, or
// "anonymous".
func Subject(ctx context.Context) string {
	if s, ok := ctx.Value(contextKeySubject).(string); ok && s != "" {
		return s
	}
	return "anonymous"
}
