package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsIsolated(t *testing.T) {
	// Two collectors in one process must not collide on registration
	m1 := NewMetrics()
	m2 := NewMetrics()

	m1.SetSessionsActive(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(m1.SessionsActive))
	assert.Equal(t, float64(0), testutil.ToFloat64(m2.SessionsActive))
}

func TestSessionCounters(t *testing.T) {
	m := NewMetrics()

	m.SessionCreated("shell")
	m.SessionCreated("shell")
	m.SessionCreated("tmux")
	m.SessionExited("exited")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SessionsCreated.WithLabelValues("shell")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsCreated.WithLabelValues("tmux")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionExits.WithLabelValues("exited")))
	assert.Equal(t, int64(3), m.Snapshot().TotalSessions)
}

func TestConnectionSnapshot(t *testing.T) {
	m := NewMetrics()

	m.IncWSConnections()
	m.IncWSConnections()
	m.DecWSConnections()

	assert.Equal(t, int64(1), m.Snapshot().ActiveConnections)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WSConnections))
}

func TestTmuxMetrics(t *testing.T) {
	m := NewMetrics()

	m.RecordTmuxPoll("sessions", true)
	m.RecordTmuxPoll("sessions", false)
	m.SetTmuxPollInterval("clients", 4*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.TmuxPolls.WithLabelValues("sessions", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TmuxPolls.WithLabelValues("sessions", "error")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.TmuxPollInterval.WithLabelValues("clients")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/api/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/abc", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/sessions/:id", "204")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "trex_http_requests_total"))
}
