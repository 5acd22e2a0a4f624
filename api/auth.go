package api

import (
	"errors"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

// clockSkew is how far our clock may drift from the token issuer's.
const clockSkew = time.Minute

var errBadHeader = errors.New("bad auth header")

// Auth validates incoming JWT tokens and yields the owner identity.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte
}

// NewAuth creates an Auth that verifies RS256 tokens against jwks.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	return &Auth{JWKS: jwks, Audience: audience, Issuer: issuer}
}

// NewTestAuth creates an Auth that accepts HMAC tokens signed with secret.
func NewTestAuth(secret []byte) *Auth {
	if len(secret) == 0 {
		panic("api.NewTestAuth: empty secret")
	}
	return &Auth{TestMode: true, TestSecret: secret}
}

// UserIDFromAuthHeader extracts the owner identity from the Authorization
// header. The email claim is preferred; sub is the fallback.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	raw, err := bearer(h)
	if err != nil {
		return "", err
	}
	methods, keys, err := a.keys()
	if err != nil {
		return "", err
	}
	// time based claims are checked below with clockSkew applied
	parser := jwt.NewParser(jwt.WithValidMethods(methods), jwt.WithoutClaimsValidation())
	token, err := parser.Parse(raw, keys)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	if err := a.checkClaims(claims, time.Now()); err != nil {
		return "", err
	}
	return identity(claims)
}

func bearer(h string) (string, error) {
	if h == "" {
		return "", errors.New("missing authorization header")
	}
	_, raw, ok := strings.Cut(h, " ")
	if !ok || strings.Count(raw, ".") != 2 {
		return "", errBadHeader
	}
	return raw, nil
}

func (a *Auth) keys() ([]string, jwt.Keyfunc, error) {
	if a.TestMode {
		secret := func(*jwt.Token) (interface{}, error) { return a.TestSecret, nil }
		return []string{"HS256", "HS384", "HS512"}, secret, nil
	}
	if a.JWKS == nil {
		return nil, nil, errors.New("no signing keys configured")
	}
	return []string{"RS256"}, a.JWKS.Keyfunc, nil
}

// checkClaims accepts a token up to clockSkew after it expired and up to
// clockSkew before its nbf.
func (a *Auth) checkClaims(claims jwt.MapClaims, now time.Time) error {
	if !claims.VerifyExpiresAt(now.Add(-clockSkew).Unix(), !a.TestMode) {
		return errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now.Add(clockSkew).Unix(), false) {
		return errors.New("token not valid yet")
	}
	if a.TestMode {
		return nil
	}
	if !claims.VerifyAudience(a.Audience, false) {
		return errors.New("invalid audience")
	}
	if !claims.VerifyIssuer(a.Issuer, false) {
		return errors.New("invalid issuer")
	}
	return nil
}

func identity(claims jwt.MapClaims) (string, error) {
	if email, ok := claims["email"].(string); ok && email != "" {
		return email, nil
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	return "", errors.New("missing sub")
}

// SignTestToken mints an HMAC token for owner that test-mode Auth accepts.
func SignTestToken(secret []byte, owner string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("TEST_JWT_SECRET must be set")
	}
	if owner == "" {
		return "", errors.New("owner is required")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   owner,
		"email": owner,
		"exp":   time.Now().Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}
