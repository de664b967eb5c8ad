package auth

import (
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-auth-bridge/middleware/jwtware"
)

const DefaultTokenLookup = "cookie:" + AccessTokenCookie + ",header:" + fiber.HeaderAuthorization

// Interceptor is a named request interceptor. The pipeline runs them in
// slice order before route dispatch.
type Interceptor struct {
	Name    string
	Handler fiber.Handler
}

// Pipeline returns the ordered interceptors installed on every request:
// panic recovery, request logging, security headers and the session bridge.
func (h *HTTPAuthenticator) Pipeline() []Interceptor {
	pipeline := []Interceptor{
		{Name: "recover", Handler: recover.New()},
		{Name: "request_logger", Handler: RequestLogger(h.logger)},
		{Name: "security_headers", Handler: SecurityHeaders()},
	}
	if h.bridgeEnabled {
		pipeline = append(pipeline, Interceptor{Name: "session_bridge", Handler: h.SessionBridge()})
	}
	return pipeline
}

// Install registers the pipeline on app.
func (h *HTTPAuthenticator) Install(app *fiber.App) {
	for _, i := range h.Pipeline() {
		app.Use(i.Handler)
	}
}

// RequestLogger logs one line per request once the handler chain returns.
func RequestLogger(logger Logger) fiber.Handler {
	logger = normalizeLogger(logger)
	return func(c *fiber.Ctx) error {
		start := time.Now()
		// fiber reuses these buffers once the handler returns
		method := utils.CopyString(c.Method())
		path := utils.CopyString(c.Path())
		ip := utils.CopyString(c.IP())
		logger.Debug("request", "method", method, "path", path, "ip", ip)

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = HTTPStatus(err)
			}
		}

		logger.Info("response",
			"method", method,
			"path", path,
			"ip", ip,
			"status", status,
			"latency", time.Since(start).String(),
		)
		return err
	}
}

// SecurityHeaders sets the fixed security headers on every response.
func SecurityHeaders() fiber.Handler {
	return helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	})
}

// SessionBridge establishes a session from a valid access token when the
// request has none. Every failure is swallowed and the request continues
// anonymous. It never issues, refreshes or revokes tokens.
func (h *HTTPAuthenticator) SessionBridge() fiber.Handler {
	extractors := jwtware.GetExtractors(h.tokenLookup, h.authScheme)

	return func(c *fiber.Ctx) error {
		if _, ok, err := h.sessions.UserID(c); err == nil && ok {
			return c.Next()
		} else if err != nil {
			h.logger.Debug("session bridge: session lookup failed", "error", err)
			return c.Next()
		}

		raw, err := jwtware.ExtractRawToken(c, extractors)
		if err != nil || raw == "" {
			return c.Next()
		}

		user, _, err := h.auther.ResolveAccessToken(c.UserContext(), raw)
		if err != nil {
			h.logger.Debug("session bridge: token rejected", "error", err)
			return c.Next()
		}

		if err := h.sessions.Establish(c, user); err != nil {
			h.logger.Debug("session bridge: could not establish session", "error", err)
			return c.Next()
		}

		h.auther.RecordSessionBridged(c.UserContext(), user)
		return c.Next()
	}
}

// resolveIdentity finds the current user from the session, then from a
// token. The user must be active.
func (h *HTTPAuthenticator) resolveIdentity(c *fiber.Ctx) (*User, *TokenClaims, error) {
	if id, ok, err := h.sessions.UserID(c); err == nil && ok {
		user, err := h.auther.ActiveUser(c.UserContext(), id.String())
		if err == nil {
			return user, nil, nil
		}
		h.logger.Debug("identity: session user rejected", "error", err)
	}

	raw, err := jwtware.ExtractRawToken(c, jwtware.GetExtractors(h.tokenLookup, h.authScheme))
	if err != nil || raw == "" {
		return nil, nil, ErrUnauthenticated
	}

	user, claims, err := h.auther.ResolveAccessToken(c.UserContext(), raw)
	if err != nil {
		return nil, nil, deriveError(ErrUnauthenticated, err)
	}
	return user, claims, nil
}

// IdentityGuard rejects anonymous requests with 401.
func (h *HTTPAuthenticator) IdentityGuard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, claims, err := h.resolveIdentity(c)
		if err != nil {
			return err
		}
		setCurrentUser(c, user, claims)
		return c.Next()
	}
}

// TokenGuard requires a valid access token, ignoring any session.
func (h *HTTPAuthenticator) TokenGuard() fiber.Handler {
	return jwtware.New(jwtware.Config{
		TokenLookup: h.tokenLookup,
		AuthScheme:  h.authScheme,
		ContextKey:  LocalsClaimsKey,
		Validator: func(raw string) (jwt.Claims, error) {
			return h.auther.TokenService().ValidateAccess(raw)
		},
		ValidationListeners: []jwtware.ValidationListener{
			func(c *fiber.Ctx, claims jwt.Claims) error {
				tc, ok := claims.(*TokenClaims)
				if !ok {
					return ErrInvalidToken
				}
				user, err := h.auther.ActiveUser(c.UserContext(), tc.Subject)
				if err != nil {
					return err
				}
				setCurrentUser(c, user, tc)
				return nil
			},
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return deriveError(ErrUnauthenticated, err)
		},
	})
}

// PageGuard redirects anonymous visitors to the login page.
func (h *HTTPAuthenticator) PageGuard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, claims, err := h.resolveIdentity(c)
		if err != nil {
			target := h.routes.LoginPage
			if next := c.OriginalURL(); next != "" {
				target += "?next=" + url.QueryEscape(next)
			}
			return c.Redirect(target, fiber.StatusFound)
		}
		setCurrentUser(c, user, claims)
		return c.Next()
	}
}
