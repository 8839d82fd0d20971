package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imadgeboyega/kiekky-chat/internal/common/apperror"
)

const testSecret = "test-secret"

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(NewAccessClaims(42, "ada", "kiekky-chat", time.Hour), testSecret)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, testSecret)
	require.NoError(t, err)

	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "ada", claims.Username)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.Equal(t, "kiekky-chat", claims.Issuer)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	token, err := GenerateJWT(NewAccessClaims(1, "ada", "", time.Hour), testSecret)
	require.NoError(t, err)

	_, err = ValidateJWT(token, "other-secret")
	assert.Error(t, err)
}

func TestJWTRejectsExpired(t *testing.T) {
	token, err := GenerateJWT(NewAccessClaims(1, "ada", "", -time.Minute), testSecret)
	require.NoError(t, err)

	_, err = ValidateJWT(token, testSecret)
	assert.Error(t, err)
}

func TestJWTRejectsGarbage(t *testing.T) {
	_, err := ValidateJWT("not.a.token", testSecret)
	assert.Error(t, err)
}

type signupForm struct {
	Username string `json:"username" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,email"`
}

func TestValidateStructUsesJSONNames(t *testing.T) {
	err := ValidateStruct(signupForm{Username: "ab", Email: "nope"})
	require.Error(t, err)

	assert.Contains(t, err.Error(), "username must be at least 3 characters")
	assert.Contains(t, err.Error(), "email must be a valid email")
	assert.NoError(t, ValidateStruct(signupForm{Username: "ada", Email: "ada@example.com"}))
}

func TestAppErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()

	AppErrorResponse(rec, apperror.Forbidden("ACCESS_DENIED", "access denied"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "ACCESS_DENIED", body.Code)
	assert.Equal(t, "access denied", body.Error)
	assert.NotEmpty(t, body.Timestamp)
}

func TestAppErrorResponseHidesServerCause(t *testing.T) {
	rec := httptest.NewRecorder()

	AppErrorResponse(rec, apperror.Internal("failed to save", assert.AnError))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}
