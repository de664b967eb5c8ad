package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

const (
	// LocalsUserKey holds the resolved *User on the fiber context
	LocalsUserKey = "auth.user"
	// LocalsClaimsKey holds *TokenClaims when identity came from a token
	LocalsClaimsKey = "auth.claims"
)

var userCtxKey = &contextKey{"user"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok && raw != nil
}

// WithClaimsContext sets the token claims in the given context
func WithClaimsContext(r context.Context, claims *TokenClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the token claims from the standard context
func GetClaims(ctx context.Context) (*TokenClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*TokenClaims)
	return raw, ok && raw != nil
}

// CurrentUser returns the user resolved by the identity guard.
func CurrentUser(c *fiber.Ctx) (*User, bool) {
	user, ok := c.Locals(LocalsUserKey).(*User)
	return user, ok && user != nil
}

// CurrentClaims returns the token claims, if identity came from a token.
func CurrentClaims(c *fiber.Ctx) (*TokenClaims, bool) {
	claims, ok := c.Locals(LocalsClaimsKey).(*TokenClaims)
	return claims, ok && claims != nil
}

func setCurrentUser(c *fiber.Ctx, user *User, claims *TokenClaims) {
	c.Locals(LocalsUserKey, user)
	ctx := WithContext(c.UserContext(), user)
	if claims != nil {
		c.Locals(LocalsClaimsKey, claims)
		ctx = WithClaimsContext(ctx, claims)
	}
	c.SetUserContext(ctx)
}
