// Package session builds the explicit session object from a bearer token.
package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/domain"
)

// ErrNoToken is returned when no bearer token is available.
var ErrNoToken = errors.New("no session token")

// FromToken decodes the JWT claims needed client side. The signature is not
// verified here: the client holds no key, the backend verifies on every call.
func FromToken(token string) (*domain.Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, ErrNoToken
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("parse session token: invalid claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.New("parse session token: missing sub claim")
	}

	s := &domain.Session{
		ID:     uuid.NewString(),
		UserID: sub,
		Token:  token,
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s, nil
}
