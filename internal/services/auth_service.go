package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"chirp-dm/config"
	"chirp-dm/internal/domain/user"
	chirp_errors "chirp-dm/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IdentityProvider resolves a bearer credential to the user it was issued for.
type IdentityProvider interface {
	Verify(token string) (user.Identity, error)
}

// AuthService verifies HS256 access tokens issued by the account service.
type AuthService struct {
	jwtSecret []byte
	accessTTL time.Duration
}

func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{
		jwtSecret: []byte(cfg.JWTSecret),
		accessTTL: time.Duration(cfg.JWTExpiryMin) * time.Minute,
	}
}

// AccessClaims carries the user id in the registered sub claim.
type AccessClaims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, chirp_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, chirp_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return AccessClaims{}, chirp_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, chirp_errors.ErrUnauthorized
	}

	return *claims, nil
}

func (s *AuthService) Verify(token string) (user.Identity, error) {
	claims, err := s.ParseAccessToken(strings.TrimSpace(token))
	if err != nil {
		return user.Identity{}, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return user.Identity{}, chirp_errors.ErrUnauthorized
	}
	return user.Identity{UserID: userID, Username: claims.Username}, nil
}

// IssueToken signs an access token for id. Used by dev seeding and tests;
// production tokens come from the account service with the same secret.
func (s *AuthService) IssueToken(id user.Identity) (string, int64, error) {
	now := time.Now()
	expiresAt := now.Add(s.accessTTL)

	claims := AccessClaims{
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(s.accessTTL.Seconds()), nil
}

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, chirp_errors.ErrInvalidInput), errors.Is(err, chirp_errors.ErrInvalidTransition):
		return 400
	case errors.Is(err, chirp_errors.ErrUnauthorized):
		return 401
	case errors.Is(err, chirp_errors.ErrForbidden):
		return 403
	case errors.Is(err, chirp_errors.ErrNotFound):
		return 404
	case errors.Is(err, chirp_errors.ErrConflict):
		return 409
	case errors.Is(err, chirp_errors.ErrRateLimited):
		return 429
	default:
		return 500
	}
}

// ErrorCode is the machine-readable code placed in error envelopes.
func ErrorCode(err error) string {
	switch HTTPStatus(err) {
	case 400:
		return "VALIDATION_ERROR"
	case 401:
		return "UNAUTHORIZED"
	case 403:
		return "FORBIDDEN"
	case 404:
		return "NOT_FOUND"
	case 409:
		return "CONFLICT"
	case 429:
		return "RATE_LIMITED"
	default:
		return "INTERNAL_ERROR"
	}
}

type ctxKey string

var identityKey ctxKey = "identity"

func WithIdentity(ctx context.Context, id user.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (user.Identity, bool) {
	id, ok := ctx.Value(identityKey).(user.Identity)
	return id, ok
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return id.UserID, true
}
