package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/pkg/jwt"
)

func setupRouter(t *testing.T) (*gin.Engine, *jwt.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	manager := jwt.NewManager(key, time.Minute, "")
	auth := NewAuthMiddleware(manager)

	r := gin.New()
	whoami := func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c))
	}
	r.GET("/private", auth.RequireAuth(), whoami)
	r.GET("/public", auth.OptionalAuth(), whoami)
	return r, manager
}

func doGet(r http.Handler, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set(AuthHeaderKey, authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	r, manager := setupRouter(t)
	token, err := manager.GenerateAccessToken("user-1", "alice", nil)
	require.NoError(t, err)

	t.Run("missing header", func(t *testing.T) {
		w := doGet(r, "/private", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		w := doGet(r, "/private", "Basic abc")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		w := doGet(r, "/private", BearerPrefix+"not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		w := doGet(r, "/private", BearerPrefix+token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-1", w.Body.String())
	})
}

func TestOptionalAuth(t *testing.T) {
	r, manager := setupRouter(t)
	token, err := manager.GenerateAccessToken("user-2", "bob", nil)
	require.NoError(t, err)

	w := doGet(r, "/public", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = doGet(r, "/public", BearerPrefix+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-2", w.Body.String())

	w = doGet(r, "/public", BearerPrefix+"broken")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
