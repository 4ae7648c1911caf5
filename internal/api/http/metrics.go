package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vaughanknight/trex-sub003/internal/domain/session"
	"github.com/vaughanknight/trex-sub003/internal/infrastructure/monitoring"
)

// MetricsSnapshot is the JSON rendition of the server's counters, for
// dashboards that do not scrape Prometheus.
type MetricsSnapshot struct {
	Timestamp     time.Time           `json:"timestamp"`
	UptimeSeconds float64             `json:"uptime_seconds"`
	Sessions      session.Stats       `json:"sessions"`
	Collector     monitoring.Snapshot `json:"collector"`
	TmuxState     string              `json:"tmux_state"`
}

// Metrics returns a JSON metrics snapshot
func (h *Handlers) Metrics(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics disabled"})
		return
	}

	snap := MetricsSnapshot{
		Timestamp:     time.Now(),
		UptimeSeconds: h.metrics.UptimeDuration().Seconds(),
		Sessions:      h.registry.Stats(),
		Collector:     h.metrics.Snapshot(),
		TmuxState:     "disabled",
	}
	if h.tmux != nil {
		snap.TmuxState = h.tmux.State().String()
	}
	c.JSON(http.StatusOK, snap)
}
