package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// CookieWriter sets and clears the token cookies.
type CookieWriter struct {
	secure bool
}

func NewCookieWriter(secure bool) *CookieWriter {
	return &CookieWriter{secure: secure}
}

// SetTokens writes both token cookies with Max-Age matching the token TTL.
func (w *CookieWriter) SetTokens(c *fiber.Ctx, pair TokenPair, accessTTL, refreshTTL time.Duration) {
	c.Cookie(w.cookie(AccessTokenCookie, pair.Access, accessTTL, pair.AccessExpiresAt))
	c.Cookie(w.cookie(RefreshTokenCookie, pair.Refresh, refreshTTL, pair.RefreshExpiresAt))
}

// Clear expires both token cookies.
func (w *CookieWriter) Clear(c *fiber.Ctx) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0).UTC(),
			MaxAge:   -1,
			Secure:   w.secure,
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteStrictMode,
		})
	}
}

func (w *CookieWriter) cookie(name, value string, ttl time.Duration, expires time.Time) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  expires,
		Secure:   w.secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	}
}
