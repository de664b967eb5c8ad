package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

const (
	msgRegistered       = "User registered successfully."
	msgLoggedIn         = "Login successful."
	msgLoggedOut        = "Logout successful."
	msgRefreshed        = "Token refreshed successfully."
	msgPasswordChanged  = "Password changed successfully."
	msgSessionCreated   = "Session created successfully"
	msgRefreshMissing   = "Refresh token not provided."
	msgRefreshInvalid   = "Invalid or expired refresh token."
	msgNotAuthenticated = "Authentication credentials were not provided."
)

// UserResponse wraps a profile with a message
type UserResponse struct {
	User    Profile `json:"user"`
	Message string  `json:"message"`
}

// MessageResponse is a plain message body
type MessageResponse struct {
	Message string `json:"message"`
}

// DetailResponse mirrors the 401 body of the check endpoint
type DetailResponse struct {
	Detail string `json:"detail"`
}

// AuthController holds the HTTP handlers.
type AuthController struct {
	h *HTTPAuthenticator
}

func NewAuthController(h *HTTPAuthenticator) *AuthController {
	return &AuthController{h: h}
}

func (a *AuthController) auther() *Auther {
	return a.h.auther
}

// issue sets cookies and binds a session for user. Session failures are
// logged; the tokens alone still authenticate the client.
func (a *AuthController) issue(c *fiber.Ctx, user *User, pair TokenPair) {
	ts := a.auther().TokenService()
	a.h.cookies.SetTokens(c, pair, ts.AccessTTL(), ts.RefreshTTL())

	if err := a.h.sessions.Establish(c, user); err != nil {
		a.h.logger.Warn("failed to establish session", "error", err, "user_id", user.ID.String())
	}
}

// Register handles POST /register
func (a *AuthController) Register(c *fiber.Ctx) error {
	req := RegisterRequest{}
	if err := c.BodyParser(&req); err != nil {
		return validationErrorFrom(err, map[string]string{"non_field_errors": "Malformed request body."})
	}

	user, pair, err := a.auther().Register(c.UserContext(), req)
	if err != nil {
		return err
	}

	a.issue(c, user, pair)

	return c.Status(fiber.StatusCreated).JSON(UserResponse{
		User:    user.ToProfile(),
		Message: msgRegistered,
	})
}

// Login handles POST /login
func (a *AuthController) Login(c *fiber.Ctx) error {
	req := LoginRequest{}
	if err := c.BodyParser(&req); err != nil {
		return validationErrorFrom(err, map[string]string{"non_field_errors": "Malformed request body."})
	}

	user, pair, err := a.auther().Login(c.UserContext(), req)
	if err != nil {
		return err
	}

	a.issue(c, user, pair)

	return c.JSON(UserResponse{
		User:    user.ToProfile(),
		Message: msgLoggedIn,
	})
}

// Logout handles POST /logout. It always succeeds.
func (a *AuthController) Logout(c *fiber.Ctx) error {
	raw := a.refreshToken(c)

	a.auther().Logout(c.UserContext(), raw)

	if err := a.h.sessions.Destroy(c); err != nil {
		a.h.logger.Debug("logout: failed to destroy session", "error", err)
	}
	a.h.cookies.Clear(c)

	return c.JSON(MessageResponse{Message: msgLoggedOut})
}

// Refresh handles POST /token/refresh and POST /refresh
func (a *AuthController) Refresh(c *fiber.Ctx) error {
	raw := a.refreshToken(c)
	if raw == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: msgRefreshMissing,
			Code:  TextCodeMissingToken,
		})
	}

	pair, user, err := a.auther().Refresh(c.UserContext(), raw)
	if err != nil {
		if IsInvalidTokenError(err) {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error: msgRefreshInvalid,
				Code:  errorTextCode(err),
			})
		}
		return err
	}

	ts := a.auther().TokenService()
	a.h.cookies.SetTokens(c, pair, ts.AccessTTL(), ts.RefreshTTL())
	a.h.logger.Debug("token refreshed", "user_id", user.ID.String())

	return c.JSON(MessageResponse{Message: msgRefreshed})
}

// Profile handles GET /profile and GET /me
func (a *AuthController) Profile(c *fiber.Ctx) error {
	user, ok := CurrentUser(c)
	if !ok {
		return ErrUnauthenticated
	}
	return c.JSON(user.ToProfile())
}

// PatchProfile handles PATCH /profile
func (a *AuthController) PatchProfile(c *fiber.Ctx) error {
	return a.updateProfile(c, true)
}

// PutProfile handles PUT /profile
func (a *AuthController) PutProfile(c *fiber.Ctx) error {
	return a.updateProfile(c, false)
}

func (a *AuthController) updateProfile(c *fiber.Ctx, partial bool) error {
	user, ok := CurrentUser(c)
	if !ok {
		return ErrUnauthenticated
	}

	req := ProfileUpdateRequest{}
	if err := c.BodyParser(&req); err != nil {
		return validationErrorFrom(err, map[string]string{"non_field_errors": "Malformed request body."})
	}

	updated, err := a.auther().UpdateProfile(c.UserContext(), user, req, partial)
	if err != nil {
		return err
	}
	return c.JSON(updated.ToProfile())
}

// ChangePassword handles PUT /change-password
func (a *AuthController) ChangePassword(c *fiber.Ctx) error {
	user, ok := CurrentUser(c)
	if !ok {
		return ErrUnauthenticated
	}

	req := ChangePasswordRequest{}
	if err := c.BodyParser(&req); err != nil {
		return validationErrorFrom(err, map[string]string{"non_field_errors": "Malformed request body."})
	}

	if err := a.auther().ChangePassword(c.UserContext(), user, req); err != nil {
		return err
	}

	return c.JSON(MessageResponse{Message: msgPasswordChanged})
}

// Check handles GET /check
func (a *AuthController) Check(c *fiber.Ctx) error {
	user, _, err := a.h.resolveIdentity(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(DetailResponse{Detail: msgNotAuthenticated})
	}
	return c.JSON(user.ToProfile())
}

// CreateSession handles POST /create-session
func (a *AuthController) CreateSession(c *fiber.Ctx) error {
	user, ok := CurrentUser(c)
	if !ok {
		return ErrUnauthenticated
	}

	if err := a.h.sessions.Establish(c, user); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create session")
	}

	return c.JSON(MessageResponse{Message: msgSessionCreated})
}

// LoginPage renders the login form
func (a *AuthController) LoginPage(c *fiber.Ctx) error {
	next := c.Query("next")
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		next = a.h.routes.Dashboard
	}

	return c.Render("login", a.h.MergeTemplateData(c, fiber.Map{
		"title": "Sign in",
		"next":  next,
	}))
}

// DashboardPage renders the dashboard template with the given title
func (a *AuthController) DashboardPage(title string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := CurrentUser(c)
		if !ok {
			return c.Redirect(a.h.routes.LoginPage, fiber.StatusFound)
		}

		return c.Render("dashboard", a.h.MergeTemplateData(c, fiber.Map{
			"page_title": title,
			"user":       user.ToProfile(),
		}))
	}
}

// refreshToken reads the refresh token from its cookie, then the body
func (a *AuthController) refreshToken(c *fiber.Ctx) string {
	if raw := c.Cookies(RefreshTokenCookie); raw != "" {
		return raw
	}

	req := RefreshRequest{}
	if len(c.Body()) == 0 {
		return ""
	}
	if err := c.BodyParser(&req); err != nil {
		return ""
	}
	return strings.TrimSpace(req.Refresh)
}
