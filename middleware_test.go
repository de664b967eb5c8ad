package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	auth "github.com/goliatone/go-auth-bridge"
)

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := auth.NewZapLogger(zap.New(core))

	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(logger)})
	app.Use(auth.RequestLogger(logger))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/conflict", func(c *fiber.Ctx) error { return auth.ErrEmailTaken })
	app.Get("/teapot", func(c *fiber.Ctx) error { return fiber.NewError(http.StatusTeapot, "short and stout") })

	cases := map[string]int{
		"/ok":       http.StatusOK,
		"/conflict": http.StatusConflict,
		"/teapot":   http.StatusTeapot,
	}

	for path, status := range cases {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode, path)
	}

	responses := logs.FilterMessage("response").All()
	require.Len(t, responses, len(cases))

	got := map[string]int64{}
	for _, entry := range responses {
		fields := entry.ContextMap()
		got[fields["path"].(string)] = fields["status"].(int64)
		assert.Equal(t, "GET", fields["method"])
		assert.Contains(t, fields, "latency")
	}
	for path, status := range cases {
		assert.EqualValues(t, status, got[path], path)
	}

	assert.Len(t, logs.FilterMessage("request").All(), len(cases))
}

func TestRequestLoggerKeepsValuesAfterCtxReuse(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := auth.NewZapLogger(zap.New(core))

	app := fiber.New()
	app.Use(auth.RequestLogger(logger))
	app.Get("/:name", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })

	paths := []string{"/aaaa", "/bbbb", "/cccc", "/dddd"}
	for _, path := range paths {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	for _, msg := range []string{"request", "response"} {
		entries := logs.FilterMessage(msg).All()
		require.Len(t, entries, len(paths))
		for i, entry := range entries {
			fields := entry.ContextMap()
			assert.Equal(t, paths[i], fields["path"], "%s %d", msg, i)
			assert.Equal(t, "GET", fields["method"])
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	app := fiber.New()
	app.Use(auth.SecurityHeaders())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)

	assert.Equal(t, "1; mode=block", resp.Header.Get("X-XSS-Protection"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", resp.Header.Get("Referrer-Policy"))
}

func TestErrorHandlerMasksInternalErrors(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(auth.NewZapLogger(zap.New(core)))})
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("pq: password authentication failed for user root") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body := readBody(t, resp)
	assert.NotContains(t, body, "password authentication")
	assert.NotEmpty(t, logs.All(), "the real cause is logged")
}
