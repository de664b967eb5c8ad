package auth_test

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-bridge"
)

func TestSentinelsCarryCategoryAndCode(t *testing.T) {
	cases := []struct {
		err      *goerrors.Error
		category goerrors.Category
		code     int
		textCode string
	}{
		{auth.ErrNotFound, goerrors.CategoryNotFound, http.StatusNotFound, auth.TextCodeNotFound},
		{auth.ErrInvalidCredentials, goerrors.CategoryAuth, http.StatusUnauthorized, auth.TextCodeInvalidCredentials},
		{auth.ErrRevoked, goerrors.CategoryAuth, http.StatusUnauthorized, auth.TextCodeTokenRevoked},
		{auth.ErrMissingToken, goerrors.CategoryBadInput, http.StatusBadRequest, auth.TextCodeMissingToken},
		{auth.ErrEmailTaken, goerrors.CategoryConflict, http.StatusConflict, auth.TextCodeEmailTaken},
		{auth.ErrInvalidTransition, goerrors.CategoryValidation, http.StatusBadRequest, auth.TextCodeInvalidTransition},
		{auth.ErrValidation, goerrors.CategoryValidation, http.StatusBadRequest, auth.TextCodeValidation},
	}

	for _, tc := range cases {
		t.Run(tc.textCode, func(t *testing.T) {
			assert.Equal(t, tc.category, tc.err.Category)
			assert.Equal(t, tc.code, tc.err.Code)
			assert.Equal(t, tc.textCode, tc.err.TextCode)
		})
	}

	assert.Same(t, auth.ErrInvalidCredentials, auth.ErrMismatchedHashAndPassword)
}

func TestDerivedErrorsMatchTheirSentinel(t *testing.T) {
	user := &auth.User{Status: auth.UserStatusDeleted}
	sm := auth.NewUserStateMachine(nil)
	_, err := sm.Transition(t.Context(), auth.ActorRef{}, user, auth.UserStatusDisabled)
	require.Error(t, err)

	assert.ErrorIs(t, err, auth.ErrInvalidTransition)
	assert.NotErrorIs(t, err, auth.ErrNotFound)
	assert.Nil(t, auth.ErrInvalidTransition.Metadata, "sentinel metadata must not change")

	var rich *goerrors.Error
	require.ErrorAs(t, err, &rich)
	assert.NotSame(t, auth.ErrInvalidTransition, rich)
	assert.Equal(t, auth.UserStatusDeleted, rich.Metadata["from"])
	assert.Equal(t, auth.TextCodeInvalidTransition, rich.TextCode)

	wrapped := fmt.Errorf("login: %w", err)
	assert.ErrorIs(t, wrapped, auth.ErrInvalidTransition)
	assert.Equal(t, http.StatusBadRequest, auth.HTTPStatus(wrapped))
}

func TestDerivedErrorsKeepTheirCause(t *testing.T) {
	_, err := auth.NormalizePhone("12", "US")
	require.Error(t, err)

	assert.ErrorIs(t, err, auth.ErrValidation)
	assert.True(t, goerrors.IsValidation(err))
	assert.Equal(t, "Enter a valid phone number.", auth.FieldErrors(err)["phone"])

	internal := goerrors.Wrap(sql.ErrConnDone, goerrors.CategoryInternal, "failed to load user")
	assert.ErrorIs(t, internal, sql.ErrConnDone)
	assert.Equal(t, http.StatusInternalServerError, auth.HTTPStatus(internal))
	assert.Equal(t, "failed to load user", internal.Message)
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
		{"validation", auth.ValidationError(map[string]string{"email": "required"}), http.StatusBadRequest},
		{"missing token", auth.ErrMissingToken, http.StatusBadRequest},
		{"credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{"conflict", auth.ErrEmailTaken, http.StatusConflict},
		{"not found", auth.ErrNotFound, http.StatusNotFound},
		{"wrapped", fmt.Errorf("x: %w", auth.ErrEmailTaken), http.StatusConflict},
		{"category only", goerrors.New("slow down", goerrors.CategoryRateLimit), http.StatusTooManyRequests},
		{"authz", goerrors.New("nope", goerrors.CategoryAuthz), http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, auth.HTTPStatus(tc.err))
		})
	}
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, auth.IsInvalidTokenError(auth.ErrInvalidToken))
	assert.True(t, auth.IsInvalidTokenError(fmt.Errorf("refresh: %w", auth.ErrTokenExpired)))
	assert.True(t, auth.IsInvalidTokenError(auth.ErrRevoked))
	assert.False(t, auth.IsInvalidTokenError(auth.ErrNotFound))

	assert.True(t, auth.IsTokenExpiredError(auth.ErrTokenExpired))
	assert.True(t, auth.IsTokenExpiredError(errors.New("token has invalid claims: token is expired")))
	assert.False(t, auth.IsTokenExpiredError(nil))

	for _, err := range []*goerrors.Error{auth.ErrNotFound, auth.ErrInvalidCredentials, auth.ErrAccountDisabled, auth.ErrAccountDeleted} {
		assert.True(t, auth.IsCredentialError(err), err.TextCode)
	}
	assert.False(t, auth.IsCredentialError(auth.ErrInvalidToken))
}

func TestValidationErrorFields(t *testing.T) {
	err := auth.ValidationError(map[string]string{
		"email":      "This field is required.",
		"first_name": "This field is required.",
	})
	assert.ErrorIs(t, err, auth.ErrValidation)
	assert.Equal(t, auth.TextCodeValidation, err.TextCode)
	assert.Equal(t, goerrors.CategoryValidation, err.Category)
	require.Len(t, err.ValidationErrors, 2)
	assert.Equal(t, "email", err.ValidationErrors[0].Field, "fields are sorted")
	assert.Equal(t, "This field is required.", auth.FieldErrors(err)["email"])
	assert.Empty(t, auth.ErrValidation.ValidationErrors, "sentinel fields must not change")

	assert.Equal(t, "Old password is incorrect.", auth.FieldErrors(auth.ErrInvalidOldPassword)["old_password"])
	assert.Nil(t, auth.FieldErrors(errors.New("plain")))
}
