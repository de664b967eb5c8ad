package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const DefaultAPIPrefix = "/api/auth"

// Routes configures where endpoints and pages are mounted.
type Routes struct {
	APIPrefix string
	LoginPage string
	Dashboard string
	Profile   string
	Settings  string
}

func defaultRoutes() Routes {
	return Routes{
		APIPrefix: DefaultAPIPrefix,
		LoginPage: "/login",
		Dashboard: "/dashboard",
		Profile:   "/profile",
		Settings:  "/settings",
	}
}

// HTTPAuthenticator binds the Auther to fiber: cookies, sessions, guards
// and handlers.
type HTTPAuthenticator struct {
	auther        *Auther
	sessions      *Sessions
	cookies       *CookieWriter
	routes        Routes
	tokenLookup   string
	authScheme    string
	bridgeEnabled bool
	logger        Logger
}

type HTTPOption func(*HTTPAuthenticator)

func WithHTTPLogger(logger Logger) HTTPOption {
	return func(h *HTTPAuthenticator) {
		h.logger = normalizeLogger(logger)
	}
}

func WithRoutes(routes Routes) HTTPOption {
	return func(h *HTTPAuthenticator) {
		d := defaultRoutes()
		if routes.APIPrefix == "" {
			routes.APIPrefix = d.APIPrefix
		}
		if routes.LoginPage == "" {
			routes.LoginPage = d.LoginPage
		}
		if routes.Dashboard == "" {
			routes.Dashboard = d.Dashboard
		}
		if routes.Profile == "" {
			routes.Profile = d.Profile
		}
		if routes.Settings == "" {
			routes.Settings = d.Settings
		}
		routes.APIPrefix = "/" + strings.Trim(routes.APIPrefix, "/")
		h.routes = routes
	}
}

// NewHTTPAuthenticator wires auther to fiber using cfg for cookie, lookup
// and bridge settings.
func NewHTTPAuthenticator(auther *Auther, sessions *Sessions, cfg Config, opts ...HTTPOption) *HTTPAuthenticator {
	h := &HTTPAuthenticator{
		auther:        auther,
		sessions:      sessions,
		cookies:       NewCookieWriter(cfg.GetCookieSecure()),
		routes:        defaultRoutes(),
		tokenLookup:   cfg.GetTokenLookup(),
		authScheme:    cfg.GetAuthScheme(),
		bridgeEnabled: cfg.GetSessionBridge(),
		logger:        defLogger(),
	}

	if h.tokenLookup == "" {
		h.tokenLookup = DefaultTokenLookup
	}
	if h.authScheme == "" {
		h.authScheme = "Bearer"
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *HTTPAuthenticator) Routes() Routes {
	return h.routes
}

// RegisterRoutes mounts the JSON API under the configured prefix.
func (h *HTTPAuthenticator) RegisterRoutes(app fiber.Router) {
	c := NewAuthController(h)
	api := app.Group(h.routes.APIPrefix)

	api.Post("/register", c.Register).Name("auth.register")
	api.Post("/login", c.Login).Name("auth.login")
	api.Post("/logout", c.Logout).Name("auth.logout")
	api.Post("/token/refresh", c.Refresh).Name("auth.token_refresh")
	api.Post("/refresh", c.Refresh).Name("auth.refresh")

	api.Get("/profile", h.IdentityGuard(), c.Profile).Name("auth.profile")
	api.Patch("/profile", h.IdentityGuard(), c.PatchProfile).Name("auth.profile.patch")
	api.Put("/profile", h.IdentityGuard(), c.PutProfile).Name("auth.profile.put")
	api.Put("/change-password", h.IdentityGuard(), c.ChangePassword).Name("auth.change_password")
	api.Get("/me", h.IdentityGuard(), c.Profile).Name("auth.me")
	api.Get("/check", c.Check).Name("auth.check")
	api.Post("/create-session", h.TokenGuard(), c.CreateSession).Name("auth.create_session")
}

// RegisterPages mounts the HTML login page and the guarded pages. The app
// needs a views engine holding the login and dashboard templates.
func (h *HTTPAuthenticator) RegisterPages(app fiber.Router) {
	c := NewAuthController(h)

	app.Get(h.routes.LoginPage, c.LoginPage).Name("page.login")
	app.Get(h.routes.Dashboard, h.PageGuard(), c.DashboardPage("Dashboard")).Name("page.dashboard")
	app.Get(h.routes.Profile, h.PageGuard(), c.DashboardPage("User Profile")).Name("page.profile")
	app.Get(h.routes.Settings, h.PageGuard(), c.DashboardPage("Settings")).Name("page.settings")
}

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

const msgInternal = "An unexpected server error occurred."

// ErrorHandler renders errors as JSON. Credential failures share one
// message, unknown errors become a generic 500 and are logged.
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	logger = normalizeLogger(logger)
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message})
		}

		var rich *goerrors.Error
		if !errors.As(err, &rich) {
			logger.Error("unhandled error",
				"error", err,
				"method", c.Method(),
				"path", c.Path(),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
				Error: msgInternal,
				Code:  TextCodeInternal,
			})
		}

		status := HTTPStatus(rich)
		body := ErrorResponse{
			Error:  rich.Message,
			Code:   rich.TextCode,
			Fields: FieldErrors(rich),
		}

		switch rich.TextCode {
		case TextCodeNotFound, TextCodeInvalidCredentials:
			body = ErrorResponse{
				Error: ErrInvalidCredentials.Message,
				Code:  TextCodeInvalidCredentials,
			}
			status = fiber.StatusUnauthorized
		case TextCodeAccountDisabled, TextCodeAccountDeleted:
			body = ErrorResponse{Error: rich.Message, Code: rich.TextCode}
			status = fiber.StatusUnauthorized
		}

		switch {
		case status == fiber.StatusUnauthorized:
			logger.Debug("request unauthorized",
				"error", rich.Message,
				"text_code", rich.TextCode,
				"path", c.Path(),
			)
		case status >= fiber.StatusInternalServerError:
			logger.Error("request failed",
				"error", rich.Message,
				"category", rich.Category,
				"cause", goerrors.RootCause(err),
				"method", c.Method(),
				"path", c.Path(),
				"details", print.MaybePrettyJSON(rich.Metadata),
			)
			body = ErrorResponse{Error: msgInternal, Code: TextCodeInternal}
		default:
			logger.Debug("request rejected",
				"error", rich.Message,
				"text_code", rich.TextCode,
				"path", c.Path(),
				"details", print.MaybePrettyJSON(rich.Metadata),
			)
		}

		return c.Status(status).JSON(body)
	}
}
