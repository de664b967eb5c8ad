package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the lifecycle status of a user
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
	UserStatusDeleted  UserStatus = "deleted"
)

// Valid reports whether s is a known status
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusDisabled, UserStatusDeleted:
		return true
	}
	return false
}

// User is the user model. Status and DeletedAt move together: DeletedAt is
// set if and only if Status is UserStatusDeleted.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Email         string     `bun:"email,notnull,unique" json:"email"`
	FirstName     string     `bun:"first_name,notnull" json:"first_name"`
	LastName      string     `bun:"last_name,notnull" json:"last_name"`
	Phone         string     `bun:"phone,nullzero" json:"phone,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Status        UserStatus `bun:"status,notnull" json:"status"`
	IsStaff       bool       `bun:"is_staff,notnull" json:"is_staff"`
	IsSuperuser   bool       `bun:"is_superuser,notnull" json:"is_superuser"`
	LastLoginAt   *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull" json:"updated_at"`
	DeletedAt     *time.Time `bun:"deleted_at,nullzero" json:"deleted_at,omitempty"`
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EnsureStatus fills in a missing status, deriving it from DeletedAt.
func (u *User) EnsureStatus() {
	if u == nil || u.Status != "" {
		return
	}
	if u.DeletedAt != nil {
		u.Status = UserStatusDeleted
		return
	}
	u.Status = UserStatusActive
}

// IsActive reports whether the user may authenticate
func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}

// IsDeleted reports whether the user was soft deleted
func (u *User) IsDeleted() bool {
	return u != nil && u.Status == UserStatusDeleted
}

// FullName joins first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// SoftDelete marks the user deleted at the given time.
func (u *User) SoftDelete(at time.Time) {
	at = at.UTC()
	u.Status = UserStatusDeleted
	u.DeletedAt = &at
	u.UpdatedAt = at
}

// Restore brings a deleted user back to active.
func (u *User) Restore(at time.Time) {
	u.Status = UserStatusActive
	u.DeletedAt = nil
	u.UpdatedAt = at.UTC()
}

func (u *User) Disable(at time.Time) {
	u.Status = UserStatusDisabled
	u.DeletedAt = nil
	u.UpdatedAt = at.UTC()
}

func (u *User) Enable(at time.Time) {
	u.Status = UserStatusActive
	u.DeletedAt = nil
	u.UpdatedAt = at.UTC()
}

// applyStatus moves the user to target through the matching mutator
func (u *User) applyStatus(target UserStatus, at time.Time) {
	switch target {
	case UserStatusDeleted:
		u.SoftDelete(at)
	case UserStatusDisabled:
		u.Disable(at)
	case UserStatusActive:
		if u.Status == UserStatusDeleted {
			u.Restore(at)
			return
		}
		u.Enable(at)
	}
}

// Profile is the public view of a user. It has no password field.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToProfile returns the public view of u
func (u *User) ToProfile() Profile {
	return Profile{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  u.FullName(),
		Phone:     u.Phone,
		IsActive:  u.IsActive(),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// BlacklistEntry is a revoked refresh token
type BlacklistEntry struct {
	bun.BaseModel `bun:"table:token_blacklist,alias:tbl"`
	JTI           string    `bun:"jti,pk" json:"jti"`
	UserID        uuid.UUID `bun:"user_id,type:uuid,notnull" json:"user_id"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expires_at"`
	RevokedAt     time.Time `bun:"revoked_at,notnull" json:"revoked_at"`
}
