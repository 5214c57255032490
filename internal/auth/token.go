// Package auth provides bearer-token authentication for Pergamon:
// stateless signed tokens, the request authorizer middleware, and the
// role capability table.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pergamon-io/pergamon/internal/domain"
)

// Token verification errors. They all collapse to "unauthenticated" at the
// transport boundary; the distinction exists for logging.
var (
	// ErrTokenMalformed indicates the token could not be parsed.
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrTokenSignatureInvalid indicates the MAC did not verify.
	ErrTokenSignatureInvalid = errors.New("token signature is invalid")

	// ErrTokenExpired indicates the token is past its expiry.
	ErrTokenExpired = errors.New("token has expired")
)

// Claims is the set of identity facts embedded in an issued token.
// The Active flag reflects the account state at issue time only; the
// middleware re-resolves the account on every request instead of
// trusting it.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64           `json:"user_id"`
	Name   string          `json:"name"`
	Role   domain.UserRole `json:"role"`
	Active bool            `json:"active"`
}

// TokenCodec issues and verifies signed, time-bounded identity tokens.
// Verification is stateless and pure; revocation is deliberately not
// supported, so deactivating a user does not invalidate tokens already
// in the wild until they expire.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	issuer string

	// now is swappable for tests.
	now func() time.Time
}

// NewTokenCodec creates a TokenCodec with the given signing secret, TTL,
// and issuer claim.
func NewTokenCodec(secret string, ttl time.Duration, issuer string) *TokenCodec {
	return &TokenCodec{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue produces a signed token for the given user. The subject is the
// user's email; expiry is issued-at plus the configured TTL.
func (c *TokenCodec) Issue(user *domain.User) (string, error) {
	now := c.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		UserID: user.ID,
		Name:   user.Name,
		Role:   user.Role,
		Active: user.IsActive(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify parses and validates a token string, returning its claims.
// Fails with ErrTokenMalformed, ErrTokenSignatureInvalid, or
// ErrTokenExpired.
func (c *TokenCodec) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenSignatureInvalid
		}
		return c.secret, nil
	},
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, ErrTokenSignatureInvalid):
			return nil, ErrTokenSignatureInvalid
		default:
			return nil, ErrTokenMalformed
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
