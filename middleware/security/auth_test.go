package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"LinkHub/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-secret"

func newEngine(opts *Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/ping", Middleware(opts), func(c *gin.Context) {
		claims := Claims(c)
		c.String(http.StatusOK, claims.Subject)
	})
	return r
}

func TestMiddleware_Bearer(t *testing.T) {
	opts := DefaultOptions([]byte(testSecret))
	token, _, _, err := security.Generate(opts.JWT, "viewer-9", nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newEngine(opts).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "viewer-9", w.Body.String())
}

func TestMiddleware_QueryToken(t *testing.T) {
	opts := DefaultOptions([]byte(testSecret))
	token, _, _, err := security.Generate(opts.JWT, "viewer-q", nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	newEngine(opts).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping?token="+token, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "viewer-q", w.Body.String())
}

func TestMiddleware_Rejects(t *testing.T) {
	opts := DefaultOptions([]byte(testSecret))

	w := httptest.NewRecorder()
	newEngine(opts).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing token")

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("X-Auth-Token", "garbage")
	newEngine(opts).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
