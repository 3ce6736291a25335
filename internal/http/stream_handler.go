package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"group-chat/internal/domain"
	"group-chat/internal/eventbus"
	"group-chat/internal/stream"
)

// StreamHandler expone las sesiones SSE y el health del broker.
type StreamHandler struct {
	logger  *zap.Logger
	manager *stream.Manager
	bus     eventbus.Bus
}

func NewStreamHandler(logger *zap.Logger, manager *stream.Manager, bus eventbus.Bus) *StreamHandler {
	return &StreamHandler{logger: logger, manager: manager, bus: bus}
}

// StreamGroup maneja GET /stream/group?group_uuid=...
func (h *StreamHandler) StreamGroup(c *gin.Context) {
	h.serve(c, stream.Request{Token: streamToken(c), GroupID: c.Query("group_uuid")})
}

// StreamAll maneja GET /stream/all: todos los grupos del usuario.
func (h *StreamHandler) StreamAll(c *gin.Context) {
	h.serve(c, stream.Request{Token: streamToken(c), All: true})
}

func (h *StreamHandler) serve(c *gin.Context, req stream.Request) {
	sink, err := newSSESink(c.Writer)
	if err != nil {
		respondError(c, h.logger, "stream", err)
		return
	}
	// Los fallos del stream ya viajaron como frame de error con 200.
	if err := h.manager.Serve(c.Request.Context(), req, sink); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Info("stream closed", zap.String("kind", domain.ErrorKind(err)), zap.Error(err))
	}
}

// Health maneja GET /stream/health.
func (h *StreamHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, broker, code := "healthy", "connected", http.StatusOK
	if err := h.bus.Ping(ctx); err != nil {
		status, broker, code = "unhealthy", err.Error(), http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":         status,
		"broker":         broker,
		"active_streams": h.manager.Active(),
	})
}

// streamToken acepta el header Authorization o ?token= (EventSource no manda headers).
func streamToken(c *gin.Context) string {
	if token := bearerToken(c); token != "" {
		return token
	}
	return strings.TrimSpace(c.Query("token"))
}
