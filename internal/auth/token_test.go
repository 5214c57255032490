package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pergamon-io/pergamon/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testUser() *domain.User {
	return &domain.User{
		ID:     7,
		Name:   "Reader",
		Email:  "reader@example.com",
		Role:   domain.RoleMember,
		Status: domain.UserActive,
	}
}

func TestTokenCodec_IssueVerify(t *testing.T) {
	codec := NewTokenCodec(testSecret, time.Hour, "pergamon")

	token, err := codec.Issue(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "Reader", claims.Name)
	assert.Equal(t, domain.RoleMember, claims.Role)
	assert.Equal(t, "reader@example.com", claims.Subject)
	assert.Equal(t, "pergamon", claims.Issuer)
	assert.True(t, claims.Active)
}

func TestTokenCodec_Expired(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	codec := NewTokenCodec(testSecret, time.Hour, "pergamon")
	codec.now = func() time.Time { return issued }

	token, err := codec.Issue(testUser())
	require.NoError(t, err)

	// Still valid just inside the TTL.
	codec.now = func() time.Time { return issued.Add(59 * time.Minute) }
	_, err = codec.Verify(token)
	require.NoError(t, err)

	codec.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenCodec_WrongSecret(t *testing.T) {
	issuer := NewTokenCodec(testSecret, time.Hour, "pergamon")
	verifier := NewTokenCodec("another-secret-another-secret-32", time.Hour, "pergamon")

	token, err := issuer.Issue(testUser())
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrTokenSignatureInvalid)
}

func TestTokenCodec_WrongIssuer(t *testing.T) {
	issuer := NewTokenCodec(testSecret, time.Hour, "someone-else")
	verifier := NewTokenCodec(testSecret, time.Hour, "pergamon")

	token, err := issuer.Issue(testUser())
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestTokenCodec_Garbage(t *testing.T) {
	codec := NewTokenCodec(testSecret, time.Hour, "pergamon")

	for _, token := range []string{"", "garbage", "a.b.c"} {
		_, err := codec.Verify(token)
		assert.Error(t, err, "token %q must not verify", token)
	}
}
