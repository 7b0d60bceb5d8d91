package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"room-status-backend/config"
	"room-status-backend/internal/mw"
	"room-status-backend/internal/telemetry"
)

// NewRouter creates and configures a new Gin router. gatherer may be nil to
// leave /metrics unmounted.
func NewRouter(h *Handler, cfg config.ServerConfig, cache *mw.ResponseCache, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.SetHTMLTemplate(Templates())

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader)

	r.GET("/health", h.Health)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(telemetry.Handler(gatherer)))
	}

	// QR front door
	if h.signer != nil {
		r.GET("/form", rateLimiter, h.GetForm)
		r.POST("/update", rateLimiter, h.PostUpdate)
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	if cache != nil {
		api.Use(cache.Middleware())
	}
	{
		api.GET("/rooms", h.GetRooms)
		api.POST("/rooms", h.CreateRoom)
		api.GET("/rooms/:id", h.GetRoom)
		api.DELETE("/rooms/:id", h.DeleteRoom)
		api.GET("/rooms/:id/events", h.GetRoomEvents)
		api.PUT("/rooms/:id/status", h.UpdateRoomStatus)
		api.GET("/rooms/:id/actions", h.GetRoomActions)

		api.GET("/metrics/summary", h.GetMetricsSummary)
		api.GET("/export.xlsx", h.ExportHistory)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
