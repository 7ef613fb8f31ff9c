package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/inmobiliaria/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-that-is-long-enough-32"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestValidator() *JWTValidator {
	v := NewJWTValidator(config.JWTConfig{Secret: testSecret, Issuer: "identity"})
	v.now = func() time.Time { return fixedNow }
	return v
}

func sign(t *testing.T, method jwt.SigningMethod, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(userID uuid.UUID) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    "identity",
			IssuedAt:  jwt.NewNumericDate(fixedNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(fixedNow.Add(time.Hour)),
		},
		Email: "admin@example.com",
	}
}

func TestValidate_Success(t *testing.T) {
	userID := uuid.New()
	token := sign(t, jwt.SigningMethodHS256, testSecret, validClaims(userID))

	claims, err := newTestValidator().Validate("Bearer " + token)

	require.NoError(t, err)
	got, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, got)
	assert.Equal(t, "admin@example.com", claims.Email)
}

func TestValidate_Rejections(t *testing.T) {
	userID := uuid.New()

	expired := validClaims(userID)
	expired.ExpiresAt = jwt.NewNumericDate(fixedNow.Add(-time.Hour))

	future := validClaims(userID)
	future.NotBefore = jwt.NewNumericDate(fixedNow.Add(time.Hour))

	wrongIssuer := validClaims(userID)
	wrongIssuer.Issuer = "someone-else"

	noExpiry := validClaims(userID)
	noExpiry.ExpiresAt = nil

	badSubject := validClaims(userID)
	badSubject.Subject = "admin"

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrInvalidToken},
		{"garbage", "not.a.jwt", ErrInvalidToken},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, "another-secret", validClaims(userID)), ErrInvalidToken},
		{"wrong algorithm", sign(t, jwt.SigningMethodHS512, testSecret, validClaims(userID)), ErrInvalidToken},
		{"expired", sign(t, jwt.SigningMethodHS256, testSecret, expired), ErrExpiredToken},
		{"not yet valid", sign(t, jwt.SigningMethodHS256, testSecret, future), ErrTokenNotYetValid},
		{"wrong issuer", sign(t, jwt.SigningMethodHS256, testSecret, wrongIssuer), ErrInvalidToken},
		{"no expiry", sign(t, jwt.SigningMethodHS256, testSecret, noExpiry), ErrInvalidToken},
		{"subject not a uuid", sign(t, jwt.SigningMethodHS256, testSecret, badSubject), ErrMissingUserID},
	}
	v := newTestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidate_LeewayAndAnyIssuer(t *testing.T) {
	v := NewJWTValidator(config.JWTConfig{Secret: testSecret})
	v.now = func() time.Time { return fixedNow }
	claims := validClaims(uuid.New())
	claims.Issuer = "anything"
	claims.ExpiresAt = jwt.NewNumericDate(fixedNow.Add(-10 * time.Second))

	_, err := v.Validate(sign(t, jwt.SigningMethodHS256, testSecret, claims))

	assert.NoError(t, err)
}
