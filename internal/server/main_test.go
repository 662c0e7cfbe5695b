package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"inkwell/internal/cache"
	"inkwell/internal/config"
	"inkwell/internal/database"
	"inkwell/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:            "8080",
		Env:             "test",
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 168 * time.Hour,
	}
}

// newTestServer builds a Server on an in-memory SQLite database with no
// Redis. The returned app has routes but no global middleware, so tests hit
// handlers directly.
func newTestServer(t *testing.T) (*Server, *fiber.App) {
	t.Helper()
	return newTestServerWithRedis(t, nil)
}

// newTestServerWithRedis is like newTestServer but backed by the given Redis
// client (typically a miniredis).
func newTestServerWithRedis(t *testing.T, rdb *redis.Client) (*Server, *fiber.App) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	cache.SetClient(rdb)
	t.Cleanup(func() { cache.SetClient(nil) })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServerWithDeps(testConfig(), db, rdb, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return models.RespondWithError(c, models.HTTPStatus(err), err)
		},
	})
	s.SetupRoutes(app)
	return s, app
}

// newTestRedis spins up a miniredis and returns a client bound to it.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

// doJSON performs a JSON request against the app, with an optional bearer token.
func doJSON(t *testing.T, app *fiber.App, method, path string, body any, token string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

// decodeBody decodes the response body into a generic map.
func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// decodeList decodes the response body into a slice of generic maps.
func decodeList(t *testing.T, resp *http.Response) []map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// registerAndLogin creates an account through the API and returns its access token.
func registerAndLogin(t *testing.T, app *fiber.App, username, email, password string) string {
	t.Helper()

	resp := doJSON(t, app, http.MethodPost, "/users/", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	return login(t, app, username, password)
}

// login exchanges credentials for an access token.
func login(t *testing.T, app *fiber.App, username, password string) string {
	t.Helper()

	resp := doJSON(t, app, http.MethodPost, "/users/login/", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	token, _ := body["access"].(string)
	require.NotEmpty(t, token)
	return token
}
