package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/simbridge/simbridge/internal/bridge"
	"github.com/simbridge/simbridge/internal/observability"
)

var startedAt = time.Now()

func newStatusRouter(handles []bridge.Handle) *gin.Engine {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.Instrument(log.Logger))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(startedAt).String(),
			"service": "simbridge",
		})
	})
	r.GET("/channels", func(c *gin.Context) {
		out := make([]gin.H, 0, len(handles))
		for _, h := range handles {
			name, _ := bridge.Name(h)
			port, _ := bridge.Port(h)
			connected, _ := bridge.Connected(h)
			out = append(out, gin.H{
				"name":      name,
				"port":      port,
				"connected": connected,
			})
		}
		c.JSON(http.StatusOK, gin.H{"channels": out})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func serveStatus(addr string, handles []bridge.Handle) {
	if err := newStatusRouter(handles).Run(addr); err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("status endpoint stopped")
	}
}
