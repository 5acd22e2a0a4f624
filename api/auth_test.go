package api

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestUserIDFromAuthHeaderManyPeriods(t *testing.T) {
	a := NewTestAuth(testSecret)
	header := "Bearer " + strings.Repeat(".", 10000)
	if _, err := a.UserIDFromAuthHeader(header); err == nil || err.Error() != "bad auth header" {
		t.Fatalf("expected bad auth header error, got %v", err)
	}
}

func TestUserIDFromAuthHeaderPrefersEmail(t *testing.T) {
	a := NewTestAuth(testSecret)
	tok := signToken(t, jwt.MapClaims{"sub": "auth0|1", "email": "a@x.com"})
	got, err := a.UserIDFromAuthHeader("Bearer " + tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != "a@x.com" {
		t.Fatalf("expected email claim, got %q", got)
	}
}

func TestUserIDFromAuthHeaderFallsBackToSub(t *testing.T) {
	a := NewTestAuth(testSecret)
	tok := signToken(t, jwt.MapClaims{"sub": "auth0|1"})
	got, err := a.UserIDFromAuthHeader("Bearer " + tok)
	if err != nil || got != "auth0|1" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestUserIDFromAuthHeaderRejects(t *testing.T) {
	a := NewTestAuth(testSecret)
	other, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("other"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	cases := map[string]string{
		"missing":      "",
		"no scheme":    "token",
		"wrong secret": "Bearer " + other,
		"no identity":  "Bearer " + signToken(t, jwt.MapClaims{"name": "x"}),
	}
	for name, header := range cases {
		if _, err := a.UserIDFromAuthHeader(header); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestUserIDFromAuthHeaderWithoutKeys(t *testing.T) {
	a := NewAuth(nil, "aud", "iss")
	tok := signToken(t, jwt.MapClaims{"sub": "x"})
	if _, err := a.UserIDFromAuthHeader("Bearer " + tok); err == nil {
		t.Fatal("expected error without JWKS")
	}
}

func TestSignTestTokenRoundTrip(t *testing.T) {
	tok, err := SignTestToken(testSecret, "a@x.com", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := NewTestAuth(testSecret).UserIDFromAuthHeader("Bearer " + tok)
	if err != nil || got != "a@x.com" {
		t.Fatalf("got %q, %v", got, err)
	}

	expired, err := SignTestToken(testSecret, "a@x.com", -time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewTestAuth(testSecret).UserIDFromAuthHeader("Bearer " + expired); err == nil {
		t.Fatal("expired token accepted")
	}
	if _, err := SignTestToken(nil, "a@x.com", time.Hour); err == nil {
		t.Fatal("expected error without secret")
	}
}

func TestUserIDFromAuthHeaderClockSkew(t *testing.T) {
	a := NewTestAuth(testSecret)
	now := time.Now()
	cases := []struct {
		name   string
		claims jwt.MapClaims
		ok     bool
	}{
		{"fresh", jwt.MapClaims{"sub": "x", "exp": now.Add(time.Hour).Unix()}, true},
		{"expired within skew", jwt.MapClaims{"sub": "x", "exp": now.Add(-30 * time.Second).Unix()}, true},
		{"expired past skew", jwt.MapClaims{"sub": "x", "exp": now.Add(-2 * time.Minute).Unix()}, false},
		{"nbf within skew", jwt.MapClaims{"sub": "x", "nbf": now.Add(30 * time.Second).Unix()}, true},
		{"nbf past skew", jwt.MapClaims{"sub": "x", "nbf": now.Add(2 * time.Minute).Unix()}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.UserIDFromAuthHeader("Bearer " + signToken(t, tc.claims))
			if tc.ok && err != nil {
				t.Fatalf("rejected: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("accepted")
			}
		})
	}
}

func TestCheckClaimsRequiresExpiryOutsideTestMode(t *testing.T) {
	a := NewAuth(nil, "tarefas", "https://issuer/")
	now := time.Now()
	valid := jwt.MapClaims{"aud": "tarefas", "iss": "https://issuer/", "exp": float64(now.Add(-30 * time.Second).Unix())}
	if err := a.checkClaims(valid, now); err != nil {
		t.Fatalf("token inside skew rejected: %v", err)
	}
	cases := map[string]jwt.MapClaims{
		"no exp":    {"aud": "tarefas", "iss": "https://issuer/"},
		"expired":   {"aud": "tarefas", "iss": "https://issuer/", "exp": float64(now.Add(-2 * time.Minute).Unix())},
		"wrong aud": {"aud": "other", "iss": "https://issuer/", "exp": float64(now.Add(time.Hour).Unix())},
		"wrong iss": {"aud": "tarefas", "iss": "https://evil/", "exp": float64(now.Add(time.Hour).Unix())},
	}
	for name, claims := range cases {
		if err := a.checkClaims(claims, now); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
