package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"room-status-backend/internal/export"
	"room-status-backend/internal/lifecycle"
	"room-status-backend/internal/metrics"
	"room-status-backend/internal/signing"
	"room-status-backend/internal/store"
)

// Deps are the collaborators the handlers need. Signer and Webpush may be nil,
// which disables the QR form and push endpoints respectively.
type Deps struct {
	Engine        *lifecycle.Engine
	Metrics       *metrics.Engine
	Subscriptions store.SubscriptionStore
	History       export.Source
	Signer        *signing.Signer
	Webpush       *webpush.Options
	Logger        *zap.Logger
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine  *lifecycle.Engine
	metrics *metrics.Engine
	subs    store.SubscriptionStore
	history export.Source
	signer  *signing.Signer
	webpush *webpush.Options
	logger  *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:  d.Engine,
		metrics: d.Metrics,
		subs:    d.Subscriptions,
		history: d.History,
		signer:  d.Signer,
		webpush: d.Webpush,
		logger:  logger,
	}
}

// Health answers liveness probes.
func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func roomIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return 0, false
	}
	return id, true
}

// statusCode maps lifecycle errors onto HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, lifecycle.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) abortWithError(c *gin.Context, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(code, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}
