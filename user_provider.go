package auth

import (
	"context"
	"errors"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// UserTracker is a store we can use to retrieve users
type UserTracker interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

// UserProvider verifies email/password credentials.
type UserProvider struct {
	store  UserTracker
	hasher PasswordHasher
	logger Logger

	dummyOnce sync.Once
	dummy     string
}

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserTracker, hasher PasswordHasher) *UserProvider {
	return &UserProvider{
		store:  store,
		hasher: hasher,
		logger: defLogger(),
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	u.logger = normalizeLogger(l)
	return u
}

// Verify checks credentials. Unknown emails still pay for a bcrypt
// comparison. Account status is only revealed once the password matched.
func (u *UserProvider) Verify(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)

	user, err := u.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = u.hasher.ComparePasswordAndHash(password, u.dummyHash())
			u.logger.Debug("login for unknown email", "email", email)
			return nil, deriveError(ErrNotFound, nil, map[string]any{"email": email})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during verification")
	}

	if err := u.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if errors.Is(err, ErrMismatchedHashAndPassword) {
			return nil, deriveError(ErrInvalidCredentials, nil, map[string]any{"user_id": user.ID.String()})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compare password hash")
	}

	if err := ensureAuthenticatableUser(user); err != nil {
		return nil, err
	}

	if err := u.store.TrackSuccessfulLogin(ctx, user); err != nil {
		u.logger.Error("failed to track successful login", "error", err, "user_id", user.ID.String())
	}

	return user, nil
}

// CheckPassword verifies password against the stored hash of user.
func (u *UserProvider) CheckPassword(user *User, password string) error {
	if err := u.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if errors.Is(err, ErrMismatchedHashAndPassword) {
			return ErrInvalidOldPassword
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compare password hash")
	}
	return nil
}

func (u *UserProvider) dummyHash() string {
	if d, ok := u.hasher.(interface{ DummyHash() string }); ok {
		return d.DummyHash()
	}
	u.dummyOnce.Do(func() {
		u.dummy, _ = u.hasher.HashPassword("dummy-password-for-timing")
	})
	return u.dummy
}

func ensureAuthenticatableUser(user *User) error {
	if user == nil {
		return ErrNotFound
	}

	user.EnsureStatus()
	return statusAuthError(user)
}

func statusAuthError(user *User) error {
	switch user.Status {
	case UserStatusActive:
		return nil
	case UserStatusDeleted:
		return deriveError(ErrAccountDeleted, nil, map[string]any{"user_id": user.ID.String()})
	case UserStatusDisabled:
		return deriveError(ErrAccountDisabled, nil, map[string]any{"user_id": user.ID.String()})
	default:
		return deriveError(ErrAccountDisabled, nil, map[string]any{
			"user_id": user.ID.String(),
			"status":  user.Status,
		})
	}
}
