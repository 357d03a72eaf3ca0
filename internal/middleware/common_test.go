package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func newCommonApp(cfg Config) *fiber.App {
	app := fiber.New()
	Register(app, cfg)
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString(CorrelationIDFromContext(c.UserContext()))
	})
	app.Get("/panic", func(*fiber.Ctx) error { panic("boom") })
	return app
}

func TestRegisterCORSUsesConfiguredOrigins(t *testing.T) {
	app := newCommonApp(Config{AllowOrigins: []string{"https://codemeet.dev/", " "}})

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://codemeet.dev")
	req.Header.Set(fiber.HeaderAccessControlRequestMethod, http.MethodPost)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "https://codemeet.dev", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
	require.Contains(t, resp.Header.Get(fiber.HeaderAccessControlAllowHeaders), HeaderCorrelationID)

	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://elsewhere.example")
	req.Header.Set(fiber.HeaderAccessControlRequestMethod, http.MethodPost)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Empty(t, resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
}

func TestRegisterCORSDefaultsToAnyOrigin(t *testing.T) {
	require.Equal(t, "*", corsConfig(nil).AllowOrigins)
	require.Equal(t, "https://a.dev,https://b.dev", corsConfig([]string{"https://a.dev", "https://b.dev/"}).AllowOrigins)
}

func TestRegisterRecoversPanics(t *testing.T) {
	app := newCommonApp(Config{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/panic", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestCorrelationIDReusesWellFormedHeader(t *testing.T) {
	app := newCommonApp(Config{})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderCorrelationID, "run-42")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "run-42", resp.Header.Get(HeaderCorrelationID))
	require.Equal(t, "run-42", readBody(t, resp))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-7")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "req-7", resp.Header.Get(HeaderCorrelationID))
}

func TestCorrelationIDReplacesMalformedHeader(t *testing.T) {
	app := newCommonApp(Config{})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderCorrelationID, "bad id {\"forged\":true}")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	id := resp.Header.Get(HeaderCorrelationID)
	require.NotEqual(t, "bad id {\"forged\":true}", id)
	require.Len(t, id, 36)
	require.Equal(t, id, readBody(t, resp))
}

func TestContextWithCorrelation(t *testing.T) {
	ctx := ContextWithCorrelation(context.Background(), " abc ")
	require.Equal(t, "abc", CorrelationIDFromContext(ctx))
	require.Equal(t, "abc", CorrelationIDFromContext(ContextWithCorrelation(ctx, "  ")))
	require.Empty(t, CorrelationIDFromContext(context.Background()))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
