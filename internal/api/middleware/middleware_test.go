package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r http.Handler, remote, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remote
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORSAnyOrigin(t *testing.T) {
	r := newRouter(CORS(DefaultCORSConfig(nil)))

	// httptest requests are addressed to example.com, so the origin must
	// differ from that host to be treated as cross-origin.
	w := get(r, "1.2.3.4:1000", "http://other.example")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSAllowList(t *testing.T) {
	r := newRouter(CORS(DefaultCORSConfig([]string{"http://localhost:5173"})))

	w := get(r, "1.2.3.4:1000", "http://localhost:5173")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = get(r, "1.2.3.4:1000", "http://evil.example")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRateLimitPerClient(t *testing.T) {
	r := newRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))

	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1:1", "").Code)
	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1:2", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "10.0.0.1:3", "").Code)

	// Other clients have their own bucket
	assert.Equal(t, http.StatusOK, get(r, "10.0.0.2:1", "").Code)
}

func TestRateLimitForgetsIdleClients(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	r := newRouter(rateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}, clock))

	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1:1", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "10.0.0.1:1", "").Code)

	now = now.Add(clientTTL + time.Second)
	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1:1", "").Code)
}

func TestGlobalRateLimit(t *testing.T) {
	r := newRouter(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))

	assert.Equal(t, http.StatusOK, get(r, "10.0.0.1:1", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "10.0.0.2:1", "").Code)
}

func TestRequestLogAssignsID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	var seen string
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLog(zap.New(core)))
	r.GET("/ping", func(c *gin.Context) {
		seen = RequestID(c)
		c.Status(http.StatusNoContent)
	})

	w := get(r, "1.2.3.4:1000", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, seen, entries[0].ContextMap()["request_id"])
	assert.EqualValues(t, http.StatusNoContent, entries[0].ContextMap()["status"])
}

func TestRequestLogKeepsCallerID(t *testing.T) {
	r := newRouter(RequestLog(zap.NewNop()))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}
