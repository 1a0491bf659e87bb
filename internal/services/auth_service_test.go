package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"chirp-dm/config"
	"chirp-dm/internal/domain/user"
	chirp_errors "chirp-dm/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth() *AuthService {
	return NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiryMin: 5})
}

func TestAuthService_IssueAndVerify(t *testing.T) {
	auth := newTestAuth()
	id := user.Identity{UserID: uuid.New(), Username: "alice"}

	token, expiresIn, err := auth.IssueToken(id)
	require.NoError(t, err)
	assert.Equal(t, int64(300), expiresIn)

	got, err := auth.Verify(" " + token + " ")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestAuthService_VerifyStandardSubject(t *testing.T) {
	auth := newTestAuth()
	id := uuid.New()

	external := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      id.String(),
		"username": "carol",
		"exp":      time.Now().Add(time.Minute).Unix(),
	})
	token, err := external.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	claims, err := auth.ParseAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, id.String(), claims.Subject)

	got, err := auth.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user.Identity{UserID: id, Username: "carol"}, got)
}

func TestAuthService_Verify_Rejects(t *testing.T) {
	auth := newTestAuth()
	other := NewAuthService(&config.Config{JWTSecret: "other-secret", JWTExpiryMin: 5})
	foreign, _, err := other.IssueToken(user.Identity{UserID: uuid.New()})
	require.NoError(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredToken, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	badSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "not-a-uuid"}})
	badSubjectToken, err := badSubject.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":       "",
		"garbage":     "abc.def.ghi",
		"wrong key":   foreign,
		"expired":     expiredToken,
		"bad subject": badSubjectToken,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := auth.Verify(token)
			assert.ErrorIs(t, err, chirp_errors.ErrUnauthorized)
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 400, HTTPStatus(fmt.Errorf("%w: content", chirp_errors.ErrInvalidInput)))
	assert.Equal(t, 401, HTTPStatus(chirp_errors.ErrUnauthorized))
	assert.Equal(t, 403, HTTPStatus(chirp_errors.ErrForbidden))
	assert.Equal(t, 404, HTTPStatus(chirp_errors.ErrNotFound))
	assert.Equal(t, 429, HTTPStatus(chirp_errors.ErrRateLimited))
	assert.Equal(t, 500, HTTPStatus(fmt.Errorf("boom")))
	assert.Equal(t, "NOT_FOUND", ErrorCode(chirp_errors.ErrNotFound))
}

func TestIdentityContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	id := user.Identity{UserID: uuid.New(), Username: "bob"}
	ctx := WithIdentity(context.Background(), id)
	got, ok := UserIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, id.UserID, got)
}
