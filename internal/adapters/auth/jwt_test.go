package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Setlist/internal/domain"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v, err := NewJWTVerifier("s3cret")
	require.NoError(t, err)

	token, err := v.Issue("drummer", "Drums", time.Hour)
	require.NoError(t, err)

	user, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("drummer"), user.ID)
	assert.Equal(t, "Drums", user.DisplayName)
}

func TestJWTVerifier_NameFallsBackToSubject(t *testing.T) {
	v, err := NewJWTVerifier("s3cret")
	require.NoError(t, err)

	token, err := v.Issue("keys", "", 0)
	require.NoError(t, err)
	user, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "keys", user.DisplayName)

	token, err = v.Issue("keys", strings.Repeat("x", 80), 0)
	require.NoError(t, err)
	user, err = v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "keys", user.DisplayName)
}

func TestJWTVerifier_LongSubjectWithoutName(t *testing.T) {
	v, err := NewJWTVerifier("s3cret")
	require.NoError(t, err)

	subject := "auth0|" + strings.Repeat("a", 34)
	token, err := v.Issue(domain.UserID(subject), "", time.Hour)
	require.NoError(t, err)

	user, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID(subject), user.ID)
	assert.Equal(t, subject[:domain.MaxDisplayNameLen], user.DisplayName)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v, err := NewJWTVerifier("s3cret")
	require.NoError(t, err)
	other, err := NewJWTVerifier("other")
	require.NoError(t, err)

	foreign, err := other.Issue("bass", "", time.Hour)
	require.NoError(t, err)

	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := v.Issue("bass", "", time.Hour)
	require.NoError(t, err)
	v.now = time.Now

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "bass"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere", Subject: "bass"},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"foreign":      foreign,
		"expired":      expired,
		"alg none":     none,
		"wrong issuer": wrongIssuer,
		"no subject":   noSubject,
	} {
		_, err := v.Verify(context.Background(), token)
		assert.ErrorIs(t, err, domain.ErrUnauthorized, name)
	}
}

func TestNewJWTVerifier_EmptySecret(t *testing.T) {
	_, err := NewJWTVerifier("")
	require.ErrorIs(t, err, ErrNoSecret)
}
