package auth

import (
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeNotFound           = "NOT_FOUND"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeAccountDisabled    = "ACCOUNT_DISABLED"
	TextCodeAccountDeleted     = "ACCOUNT_DELETED"
	TextCodeInvalidToken       = "INVALID_TOKEN"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenRevoked       = "TOKEN_REVOKED"
	TextCodeEmailTaken         = "EMAIL_TAKEN"
	TextCodeUnauthenticated    = "UNAUTHENTICATED"
	TextCodeInvalidOldPassword = "INVALID_OLD_PASSWORD"
	TextCodeValidation         = "VALIDATION_ERROR"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeInvalidTransition  = "INVALID_USER_STATE_TRANSITION"
	TextCodeMissingToken       = "MISSING_TOKEN"
	TextCodeInternal           = "INTERNAL_ERROR"
)

var (
	// ErrNotFound is returned when a user does not exist. Credential checks
	// render it exactly like ErrInvalidCredentials.
	ErrNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
			WithTextCode(TextCodeNotFound).
			WithCode(goerrors.CodeNotFound)

	// ErrInvalidCredentials is a wrong email/password pair
	ErrInvalidCredentials = goerrors.New("Unable to log in with provided credentials.", goerrors.CategoryAuth).
				WithTextCode(TextCodeInvalidCredentials).
				WithCode(goerrors.CodeUnauthorized)

	ErrAccountDisabled = goerrors.New("User account is disabled.", goerrors.CategoryAuth).
				WithTextCode(TextCodeAccountDisabled).
				WithCode(goerrors.CodeUnauthorized)

	ErrAccountDeleted = goerrors.New("User account has been deleted.", goerrors.CategoryAuth).
				WithTextCode(TextCodeAccountDeleted).
				WithCode(goerrors.CodeUnauthorized)

	// ErrInvalidToken covers bad signatures, malformed tokens, wrong token
	// type and tokens whose subject can no longer authenticate.
	ErrInvalidToken = goerrors.New("Token is invalid or expired.", goerrors.CategoryAuth).
			WithTextCode(TextCodeInvalidToken).
			WithCode(goerrors.CodeUnauthorized)

	ErrTokenExpired = goerrors.New("Token is expired.", goerrors.CategoryAuth).
			WithTextCode(TextCodeTokenExpired).
			WithCode(goerrors.CodeUnauthorized)

	ErrRevoked = goerrors.New("Token has been revoked.", goerrors.CategoryAuth).
			WithTextCode(TextCodeTokenRevoked).
			WithCode(goerrors.CodeUnauthorized)

	ErrMissingToken = goerrors.New("Refresh token not provided.", goerrors.CategoryBadInput).
			WithTextCode(TextCodeMissingToken).
			WithCode(goerrors.CodeBadRequest)

	ErrEmailTaken = goerrors.New("A user with that email already exists.", goerrors.CategoryConflict).
			WithTextCode(TextCodeEmailTaken).
			WithCode(goerrors.CodeConflict)

	ErrUnauthenticated = goerrors.New("Authentication credentials were not provided.", goerrors.CategoryAuth).
				WithTextCode(TextCodeUnauthenticated).
				WithCode(goerrors.CodeUnauthorized)

	ErrInvalidOldPassword = withFields(
		goerrors.New("Old password is incorrect.", goerrors.CategoryAuth).
			WithTextCode(TextCodeInvalidOldPassword).
			WithCode(goerrors.CodeUnauthorized),
		map[string]string{"old_password": "Old password is incorrect."},
	)

	ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
				WithTextCode(TextCodeEmptyPassword).
				WithCode(goerrors.CodeBadRequest)

	ErrInvalidTransition = goerrors.New("invalid user state transition", goerrors.CategoryValidation).
				WithTextCode(TextCodeInvalidTransition).
				WithCode(goerrors.CodeBadRequest)

	// ErrValidation is the parent of every field level validation error.
	ErrValidation = goerrors.New("Invalid input.", goerrors.CategoryValidation).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)

	// ErrMismatchedHashAndPassword is returned by ComparePasswordAndHash
	ErrMismatchedHashAndPassword = ErrInvalidCredentials
)

// deriveError returns a fresh copy of sentinel that still satisfies
// errors.Is(err, sentinel). The sentinel itself is never mutated. When
// cause is set errors.As can reach it through the returned error.
func deriveError(sentinel *goerrors.Error, cause error, metadata ...map[string]any) *goerrors.Error {
	out := sentinel.Clone()
	out.Timestamp = time.Now()
	out.Metadata = nil
	out.Source = sentinel
	if cause != nil {
		out.Source = goerrors.Join(sentinel, cause)
	}
	if len(metadata) > 0 {
		out.WithMetadata(metadata...)
	}
	return out
}

func withFields(err *goerrors.Error, fields map[string]string) *goerrors.Error {
	if len(fields) == 0 {
		return err
	}
	err.ValidationErrors = make(goerrors.ValidationErrors, 0, len(fields))
	for _, field := range slices.Sorted(maps.Keys(fields)) {
		err.ValidationErrors = append(err.ValidationErrors, goerrors.FieldError{
			Field:   field,
			Message: fields[field],
		})
	}
	return err
}

// ValidationError builds a validation error from field messages
func ValidationError(fields map[string]string) *goerrors.Error {
	return withFields(deriveError(ErrValidation, nil), fields)
}

func validationErrorFrom(cause error, fields map[string]string) *goerrors.Error {
	return withFields(deriveError(ErrValidation, cause), fields)
}

// FieldErrors returns the field messages carried by the outermost rich
// error in err's chain, keyed by field name.
func FieldErrors(err error) map[string]string {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || len(rich.ValidationErrors) == 0 {
		return nil
	}
	out := make(map[string]string, len(rich.ValidationErrors))
	for _, fe := range rich.ValidationErrors {
		out[fe.Field] = fe.Message
	}
	return out
}

// HTTPStatus maps any error to the status code it should be rendered with
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return http.StatusInternalServerError
	}
	if rich.Code != 0 {
		return rich.Code
	}
	switch rich.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsInvalidTokenError reports errors that mean "this token cannot be used"
func IsInvalidTokenError(err error) bool {
	return goerrors.Is(err, ErrInvalidToken) ||
		goerrors.Is(err, ErrTokenExpired) ||
		goerrors.Is(err, ErrRevoked)
}

// IsCredentialError reports errors produced by a failed credential check
func IsCredentialError(err error) bool {
	return goerrors.Is(err, ErrNotFound) ||
		goerrors.Is(err, ErrInvalidCredentials) ||
		goerrors.Is(err, ErrAccountDisabled) ||
		goerrors.Is(err, ErrAccountDeleted)
}
