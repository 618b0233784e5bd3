package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aramaster/internal/config"
	"aramaster/internal/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-test-secret-middleware-test"

var cheapHash = &auth.KeyHashConfig{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestManager(t *testing.T, sec config.SecurityConfig) (*MiddlewareManager, *auth.JWTManager) {
	t.Helper()
	hash, err := auth.NewKeyHasher(cheapHash).Hash("ci-key")
	require.NoError(t, err)
	jwtManager := auth.NewJWTManager(testSecret, "ara-test", time.Hour)
	return NewMiddlewareManager(jwtManager, auth.NewAPIKeyVerifier([]string{hash}), &sec), jwtManager
}

// newEngine 受保护路由 /read 只要求认证，/index 要求 indexer，/admin 要求 admin
func newEngine(m *MiddlewareManager) *gin.Engine {
	r := gin.New()
	r.Use(m.GinRequestIDMiddleware())
	whoami := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": c.GetString("subject"), "role": c.GetString("role")})
	}
	r.GET("/public", whoami)
	protected := r.Group("/", m.GinAuthMiddleware())
	protected.GET("/read", m.GinRequireRole(auth.RoleReader, auth.RoleIndexer), whoami)
	protected.GET("/index", m.GinRequireRole(auth.RoleIndexer), whoami)
	protected.GET("/admin", m.GinRequireRole(), whoami)
	return r
}

func do(r http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, j *auth.JWTManager, subject, role string) map[string]string {
	t.Helper()
	token, _, err := j.GenerateToken(subject, role)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestGinAuthMiddleware(t *testing.T) {
	m, j := newTestManager(t, config.SecurityConfig{})
	r := newEngine(m)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"no credentials", "/read", nil, http.StatusUnauthorized},
		{"not bearer", "/read", map[string]string{"Authorization": "Basic abc"}, http.StatusUnauthorized},
		{"garbage token", "/read", map[string]string{"Authorization": "Bearer abc.def.ghi"}, http.StatusUnauthorized},
		{"reader reads", "/read", bearer(t, j, "bob", auth.RoleReader), http.StatusOK},
		{"reader cannot index", "/index", bearer(t, j, "bob", auth.RoleReader), http.StatusForbidden},
		{"indexer indexes", "/index", bearer(t, j, "ci", auth.RoleIndexer), http.StatusOK},
		{"indexer is not admin", "/admin", bearer(t, j, "ci", auth.RoleIndexer), http.StatusForbidden},
		{"admin passes every check", "/index", bearer(t, j, "root", auth.RoleAdmin), http.StatusOK},
		{"admin route", "/admin", bearer(t, j, "root", auth.RoleAdmin), http.StatusOK},
		{"api key indexes", "/index", map[string]string{"X-API-Key": "ci-key"}, http.StatusOK},
		{"api key is not admin", "/admin", map[string]string{"X-API-Key": "ci-key"}, http.StatusForbidden},
		{"wrong api key", "/index", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"public route", "/public", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodGet, tt.path, tt.header)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestGinAuthMiddleware_TokenFromOtherIssuer(t *testing.T) {
	m, _ := newTestManager(t, config.SecurityConfig{})
	other := auth.NewJWTManager(testSecret, "someone-else", time.Hour)

	w := do(newEngine(m), http.MethodGet, "/read", bearer(t, other, "bob", auth.RoleReader))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGinAuthMiddleware_SkipPathsAndCustomHeader(t *testing.T) {
	sec := config.SecurityConfig{}
	sec.Auth.SkipPaths = []string{"/read"}
	sec.Auth.APIKeyHeader = "X-CI-Key"
	m, _ := newTestManager(t, sec)
	r := newEngine(m)

	// 跳过认证后没有角色，角色检查仍然拒绝
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/read", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/index", map[string]string{"X-CI-Key": "ci-key"}).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/index", map[string]string{"X-API-Key": "ci-key"}).Code)
}

func TestTokenBucketLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewTokenBucketLimiter(1, 2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "buckets are per key")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	l.Reset("a")
	assert.True(t, l.Allow("a"))
}

func TestGinRateLimitMiddleware(t *testing.T) {
	sec := config.SecurityConfig{}
	sec.RateLimit.Enabled = true
	sec.RateLimit.RequestsPerSecond = 1
	sec.RateLimit.BurstSize = 1
	sec.RateLimit.SkipPaths = []string{"/health"}
	m, _ := newTestManager(t, sec)

	r := gin.New()
	r.Use(m.GinRateLimitMiddleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/x", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/x", nil).Code)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", nil).Code)
	}
}

func TestGinCORSMiddleware(t *testing.T) {
	sec := config.SecurityConfig{}
	sec.CORS.Enabled = true
	sec.CORS.AllowOrigins = []string{"https://ara.example.com"}
	sec.CORS.MaxAge = time.Hour
	m, _ := newTestManager(t, sec)

	r := gin.New()
	r.Use(m.GinCORSMiddleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(r, http.MethodOptions, "/x", map[string]string{"Origin": "https://ara.example.com"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://ara.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))

	w = do(r, http.MethodGet, "/x", map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestGinRequestIDMiddleware(t *testing.T) {
	m, _ := newTestManager(t, config.SecurityConfig{})
	r := gin.New()
	r.Use(m.GinRequestIDMiddleware(), m.GinSecurityHeadersMiddleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(r, http.MethodGet, "/x", map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = do(r, http.MethodGet, "/x", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
