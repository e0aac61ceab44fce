package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apphttp "fieldops_backend/internal/http"
	"fieldops_backend/internal/ratelimit"
	"fieldops_backend/platform/httpkit"
	"fieldops_backend/platform/logger"
	"fieldops_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type routerConfig struct {
	hash    string
	proxies []string
}

func (c routerConfig) GetHTTPAddr() string         { return ":0" }
func (c routerConfig) GetCORSAllowAll() bool       { return false }
func (c routerConfig) GetCORSOrigins() []string    { return []string{"https://app.example.com"} }
func (c routerConfig) GetCORSAllowCreds() bool     { return true }
func (c routerConfig) GetTrustedProxies() []string { return c.proxies }
func (c routerConfig) GetAdminTokenHash() string   { return c.hash }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type pingModule struct{}

func (pingModule) Name() string { return "ping" }

func (pingModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Public.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "public") })
	ctx.Admin.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "admin") })
}

func newEngine(t *testing.T, health apphttp.HealthChecker) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hash, err := bcrypt.GenerateFromPassword([]byte("staff-token"), bcrypt.MinCost)
	require.NoError(t, err)

	return New(&apphttp.App{
		Config:    routerConfig{hash: string(hash)},
		Logger:    logger.Nop(),
		Validator: validator.New(),
		Health:    health,
		Modules:   []apphttp.Module{pingModule{}},
	})
}

func serve(engine *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestHealthAndReadiness(t *testing.T) {
	assert.Equal(t, http.StatusOK, serve(newEngine(t, pinger{}), "/api/health", "").Code)
	assert.Equal(t, http.StatusOK, serve(newEngine(t, pinger{}), "/api/ready", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(newEngine(t, pinger{err: errors.New("down")}), "/api/ready", "").Code)
}

func TestModuleGroups(t *testing.T) {
	engine := newEngine(t, nil)

	public := serve(engine, "/api/v1/public/ping", "")
	assert.Equal(t, http.StatusOK, public.Code)
	assert.Equal(t, "nosniff", public.Header().Get("X-Content-Type-Options"))

	assert.Equal(t, http.StatusUnauthorized, serve(engine, "/api/v1/admin/ping", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(engine, "/api/v1/admin/ping", "Bearer wrong").Code)

	admin := serve(engine, "/api/v1/admin/ping", "Bearer staff-token")
	assert.Equal(t, http.StatusOK, admin.Code)
	assert.Equal(t, "admin", admin.Body.String())
}

// submitModule limits POST /submit per client IP the way lead intake does.
type submitModule struct {
	limiter *ratelimit.MemoryLimiter
	keys    []string
}

func (*submitModule) Name() string { return "submit" }

func (m *submitModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Public.POST("/submit", func(c *gin.Context) {
		key := httpkit.ClientIP(c)
		m.keys = append(m.keys, key)
		ok, err := m.limiter.Allow(c.Request.Context(), key)
		if err != nil || !ok {
			c.Status(http.StatusTooManyRequests)
			return
		}
		c.Status(http.StatusCreated)
	})
}

func newSubmitEngine(proxies []string) (*gin.Engine, *submitModule) {
	gin.SetMode(gin.TestMode)
	module := &submitModule{limiter: ratelimit.NewMemoryLimiter(3, time.Minute, 100)}
	engine := New(&apphttp.App{
		Config:    routerConfig{proxies: proxies},
		Logger:    logger.Nop(),
		Validator: validator.New(),
		Modules:   []apphttp.Module{module},
	})
	return engine, module
}

func submitFrom(engine *gin.Engine, remote, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/submit", nil)
	req.RemoteAddr = remote
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w.Code
}

func TestClientIP_IgnoresForwardedForFromUntrustedRemote(t *testing.T) {
	engine, module := newSubmitEngine(nil)

	codes := []int{
		submitFrom(engine, "203.0.113.9:52100", "1.1.1.1"),
		submitFrom(engine, "203.0.113.9:52101", "2.2.2.2"),
		submitFrom(engine, "203.0.113.9:52102", "3.3.3.3"),
		submitFrom(engine, "203.0.113.9:52103", "4.4.4.4"),
	}

	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)
	assert.Equal(t, []string{"203.0.113.9", "203.0.113.9", "203.0.113.9", "203.0.113.9"}, module.keys)
}

func TestClientIP_HonoursForwardedForFromTrustedProxy(t *testing.T) {
	engine, module := newSubmitEngine([]string{"10.0.0.0/8"})

	assert.Equal(t, http.StatusCreated, submitFrom(engine, "10.1.2.3:443", "198.51.100.7"))
	assert.Equal(t, http.StatusCreated, submitFrom(engine, "203.0.113.9:443", "198.51.100.7"))
	assert.Equal(t, []string{"198.51.100.7", "203.0.113.9"}, module.keys)
}
