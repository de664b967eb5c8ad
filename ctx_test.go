package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-bridge"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	_, ok := auth.FromContext(ctx)
	assert.False(t, ok)
	_, ok = auth.GetClaims(ctx)
	assert.False(t, ok)

	_, ok = auth.FromContext(auth.WithContext(ctx, nil))
	assert.False(t, ok, "nil user is not a user")

	user := &auth.User{ID: uuid.New()}
	claims := &auth.TokenClaims{TokenType: auth.TokenTypeAccess}
	ctx = auth.WithClaimsContext(auth.WithContext(ctx, user), claims)

	got, ok := auth.FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, user, got)

	gotClaims, ok := auth.GetClaims(ctx)
	require.True(t, ok)
	assert.Same(t, claims, gotClaims)
}

func TestCurrentUserFromLocals(t *testing.T) {
	user := &auth.User{ID: uuid.New()}

	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		if _, ok := auth.CurrentUser(c); ok {
			return c.SendStatus(fiber.StatusConflict)
		}
		c.Locals(auth.LocalsUserKey, user)
		got, ok := auth.CurrentUser(c)
		if !ok || got != user {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		if _, ok := auth.CurrentClaims(c); ok {
			return c.SendStatus(fiber.StatusConflict)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestTokenClaimsAccessors(t *testing.T) {
	var empty auth.TokenClaims
	assert.True(t, empty.Expires().IsZero())
	assert.True(t, empty.Issued().IsZero())
	_, err := empty.UserID()
	assert.Error(t, err)

	id := uuid.New()
	issued := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	claims := auth.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "01HZX3K9Q6N1B8V7C5T4R2M0JA",
			Subject:   id.String(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(15 * time.Minute)),
		},
	}

	got, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, "01HZX3K9Q6N1B8V7C5T4R2M0JA", claims.JTI())
	assert.True(t, claims.Issued().Equal(issued))
	assert.Equal(t, 15*time.Minute, claims.Expires().Sub(claims.Issued()))
}
