package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Logger is the structured logger used across the package. Args are
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetSessionTTL() time.Duration
	GetTokenLookup() string
	GetAuthScheme() string
	GetCookieSecure() bool
	GetSessionBridge() bool
	GetBcryptCost() int
	GetPhoneRegion() string
}

// Users is the user store. Lookups by email are case-insensitive and
// include soft-deleted rows so callers can tell deleted accounts apart.
type Users interface {
	Create(ctx context.Context, user *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, filter UserFilter) ([]*User, error)
	UpdateProfile(ctx context.Context, user *User) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateStatus(ctx context.Context, user *User) (*User, error)
	TrackSuccessfulLogin(ctx context.Context, user *User) error
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error
}

// UserFilter narrows List results.
type UserFilter struct {
	Search         string
	IncludeDeleted bool
	OnlyDeleted    bool
	Limit          int
}

// Blacklist records revoked refresh token identifiers.
type Blacklist interface {
	// Add claims jti. It returns ErrRevoked when jti was already present,
	// which makes rotation first-writer-wins.
	Add(ctx context.Context, entry BlacklistEntry) error
	Contains(ctx context.Context, jti string) (bool, error)
	// Purge removes entries whose token expired before the given time.
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}
