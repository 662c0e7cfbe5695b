package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	_, app := newTestServer(t)

	t.Run("success", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/users/", map[string]string{
			"username": "alice",
			"email":    "alice@example.com",
			"password": "pw123",
		}, "")
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, "User created successfully", body["message"])
		user, ok := body["user"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "alice", user["username"])
		assert.Equal(t, "alice@example.com", user["email"])
		assert.NotContains(t, user, "password")
	})

	t.Run("duplicate username", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/users/", map[string]string{
			"username": "alice",
			"email":    "other@example.com",
			"password": "pw123",
		}, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("invalid email", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/users/", map[string]string{
			"username": "bob",
			"email":    "not-an-email",
			"password": "pw123",
		}, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("missing password", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/users/", map[string]string{
			"username": "bob",
			"email":    "bob@example.com",
		}, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_ = resp.Body.Close()
	})
}

func TestLogin(t *testing.T) {
	_, app := newTestServer(t)

	resp := doJSON(t, app, http.MethodPost, "/users/", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "pw123",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	t.Run("success returns token pair", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/users/login/", map[string]string{
			"username": "alice",
			"password": "pw123",
		}, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.NotEmpty(t, body["access"])
		assert.NotEmpty(t, body["refresh"])
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/users/login/", map[string]string{
			"username": "alice",
			"password": "wrong",
		}, "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "Invalid credentials.", body["error"])
	})

	t.Run("unknown user yields the same body", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/users/login/", map[string]string{
			"username": "nobody",
			"password": "pw123",
		}, "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "Invalid credentials.", body["error"])
	})
}

func TestRefresh(t *testing.T) {
	_, app := newTestServer(t)

	resp := doJSON(t, app, http.MethodPost, "/users/", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "pw123",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodPost, "/users/login/", map[string]string{
		"username": "alice",
		"password": "pw123",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pair := decodeBody(t, resp)
	access, _ := pair["access"].(string)
	refresh, _ := pair["refresh"].(string)

	t.Run("valid refresh yields a new pair", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/users/refresh/", map[string]string{
			"refresh": refresh,
		}, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.NotEmpty(t, body["access"])
		assert.NotEmpty(t, body["refresh"])
	})

	t.Run("access token is not accepted as refresh", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/users/refresh/", map[string]string{
			"refresh": access,
		}, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/users/refresh/", map[string]string{
			"refresh": "not.a.token",
		}, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("missing token rejected", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/users/refresh/", map[string]string{}, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_ = resp.Body.Close()
	})
}

func TestRefreshTokenRejectedForResources(t *testing.T) {
	_, app := newTestServer(t)

	resp := doJSON(t, app, http.MethodPost, "/users/", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "pw123",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodPost, "/users/login/", map[string]string{
		"username": "alice",
		"password": "pw123",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pair := decodeBody(t, resp)
	refresh, _ := pair["refresh"].(string)

	resp = doJSON(t, app, http.MethodPost, "/posts/", map[string]string{
		"title":   "T",
		"content": "c",
	}, refresh)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestLogoutRevokesToken(t *testing.T) {
	rdb := newTestRedis(t)
	_, app := newTestServerWithRedis(t, rdb)

	token := registerAndLogin(t, app, "alice", "alice@example.com", "pw123")

	// Token works before logout.
	resp := doJSON(t, app, http.MethodPost, "/posts/", map[string]string{
		"title":   "T",
		"content": "c",
	}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodPost, "/users/logout/", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	// And is refused afterwards.
	resp = doJSON(t, app, http.MethodPost, "/posts/", map[string]string{
		"title":   "T2",
		"content": "c",
	}, token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	rdb := newTestRedis(t)
	_, app := newTestServerWithRedis(t, rdb)

	resp := doJSON(t, app, http.MethodPost, "/users/", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "pw123",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	resp = doJSON(t, app, http.MethodPost, "/users/login/", map[string]string{
		"username": "alice",
		"password": "pw123",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pair := decodeBody(t, resp)
	refresh, _ := pair["refresh"].(string)

	resp = doJSON(t, app, http.MethodPost, "/users/refresh/", map[string]string{
		"refresh": refresh,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	// The used refresh token is denylisted.
	resp = doJSON(t, app, http.MethodPost, "/users/refresh/", map[string]string{
		"refresh": refresh,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAdminBootstrapGate(t *testing.T) {
	_, app := newTestServer(t)

	// No admins exist: the first call is open.
	resp := doJSON(t, app, http.MethodPost, "/users/create-and-assign-group/", map[string]string{
		"username": "root",
		"email":    "root@example.com",
		"password": "pw123",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "User created and assigned to group successfully", body["message"])

	// Once bootstrapped, anonymous calls are refused.
	resp = doJSON(t, app, http.MethodPost, "/users/create-and-assign-group/", map[string]string{
		"username": "root2",
		"email":    "root2@example.com",
		"password": "pw123",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	// A regular user is refused with 403.
	userToken := registerAndLogin(t, app, "alice", "alice@example.com", "pw123")
	resp = doJSON(t, app, http.MethodPost, "/users/create-and-assign-group/", map[string]string{
		"username": "root3",
		"email":    "root3@example.com",
		"password": "pw123",
	}, userToken)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	// An admin may mint further admins.
	adminToken := login(t, app, "root", "pw123")
	resp = doJSON(t, app, http.MethodPost, "/users/create-and-assign-group/", map[string]string{
		"username": "root4",
		"email":    "root4@example.com",
		"password": "pw123",
	}, adminToken)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAuthRequired(t *testing.T) {
	_, app := newTestServer(t)

	t.Run("missing token", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/posts/", map[string]string{
			"title":   "T",
			"content": "c",
		}, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("malformed token", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/posts/", map[string]string{
			"title":   "T",
			"content": "c",
		}, "garbage")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("token signed with a different secret", func(t *testing.T) {
		other, otherApp := newTestServer(t)
		other.config.JWTSecret = "other-secret"
		forged := registerAndLogin(t, otherApp, "mallory", "mallory@example.com", "pw123")

		resp := doJSON(t, app, http.MethodPost, "/posts/", map[string]string{
			"title":   "T",
			"content": "c",
		}, forged)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	})
}
