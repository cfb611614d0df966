package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Anmolmahajn/money-tracker-notifier/internal/session"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestFromToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := signed(t, jwt.MapClaims{"sub": "alice@example.com", "exp": exp.Unix()})

	s, err := session.FromToken("Bearer " + tok)
	if err != nil {
		t.Fatalf("FromToken: %v", err)
	}
	if s.UserID != "alice@example.com" {
		t.Errorf("user = %q", s.UserID)
	}
	if s.Token != tok {
		t.Error("token should be stored without the Bearer prefix")
	}
	if !s.ExpiresAt.Equal(exp) {
		t.Errorf("expiresAt = %v, want %v", s.ExpiresAt, exp)
	}
	if s.ID == "" {
		t.Error("session id not generated")
	}
	if s.Expired(time.Now()) {
		t.Error("fresh token reported expired")
	}
}

func TestFromToken_Errors(t *testing.T) {
	if _, err := session.FromToken("  "); !errors.Is(err, session.ErrNoToken) {
		t.Fatalf("empty token err = %v", err)
	}
	if _, err := session.FromToken("not-a-jwt"); err == nil {
		t.Fatal("garbage token accepted")
	}
	if _, err := session.FromToken(signed(t, jwt.MapClaims{"name": "x"})); err == nil {
		t.Fatal("token without sub accepted")
	}
}
