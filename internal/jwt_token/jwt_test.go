package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)
var subject = "airflow"
var expiresIn = time.Hour

func Test_GenerateSchedulerToken(t *testing.T) {
	token, err := jwtService.GenerateSchedulerToken(subject, ScopeTriggerRun, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, subject, claims.Subject)
	assert.Equal(t, ScopeTriggerRun, claims.Scope)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateSchedulerToken(subject, ScopeTriggerRun, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func Test_ValidateToken_WrongKeyOrAudience(t *testing.T) {
	other := NewJWTService("other-key", "test-issuer", "test-audience")
	token, err := other.GenerateSchedulerToken(subject, ScopeTriggerRun, expiresIn)
	require.NoError(t, err)
	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	otherAudience := NewJWTService("test-signing-key", "test-issuer", "billing")
	token, err = otherAudience.GenerateSchedulerToken(subject, ScopeTriggerRun, expiresIn)
	require.NoError(t, err)
	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func Test_ValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Scope: ScopeTriggerRun,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			Audience:  []string{"test-audience"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func Test_Adapter(t *testing.T) {
	token, err := jwtService.GenerateSchedulerToken(subject, ScopeTriggerRun, expiresIn)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, subject, claims.Subject)
	assert.Equal(t, ScopeTriggerRun, claims.Scope)
	assert.NotEmpty(t, claims.JTI)
}
