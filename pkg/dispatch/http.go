package dispatch

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zerohq/agentcorp/pkg/version"
)

// stalledAfter is how long without a tick before the probe reports 503.
const stalledAfter = 120 * time.Second

// NewHTTPHandler builds the dispatcher's HTTP surface: the external
// liveness probe plus a small read-only admin API reusing the chat
// command queries.
func NewHTTPHandler(d *Dispatcher) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		sinceTick := time.Since(d.LastTick())
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)

		status := "ok"
		code := http.StatusOK
		if sinceTick > stalledAfter {
			status = "stalled"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":             status,
			"process":            "dispatcher",
			"version":            version.Full(),
			"uptime":             time.Since(d.startedAt).String(),
			"lastTickSecondsAgo": int(sinceTick.Seconds()),
			"memoryMB":           stats.HeapAlloc / (1 << 20),
		})
	})

	router.GET("/status", func(c *gin.Context) {
		ctx := c.Request.Context()
		agents, err := d.store.CountActiveAgents(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		missions, err := d.store.CountActiveMissions(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		teams, err := d.store.ListTeams(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"active_agents":   agents,
			"active_missions": missions,
			"teams":           teams,
		})
	})

	router.GET("/costs", func(c *gin.Context) {
		ctx := c.Request.Context()
		now := time.Now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		total, err := d.store.CostSince(ctx, midnight)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		tiers, err := d.store.CostByTierSince(ctx, midnight)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"today_total": total, "tiers": tiers})
	})

	return router
}
