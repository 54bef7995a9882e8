package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/amiyamandal-dev/feedsync/internal/api/middleware"
	"github.com/amiyamandal-dev/feedsync/internal/domain"
	"github.com/amiyamandal-dev/feedsync/internal/socket"
	"github.com/amiyamandal-dev/feedsync/pkg/logger"
)

// SocketHandler serves the realtime push channel
type SocketHandler struct {
	hub    *socket.Hub
	logger *logger.Logger
}

// NewSocketHandler creates a new socket handler
func NewSocketHandler(hub *socket.Hub, logger *logger.Logger) *SocketHandler {
	return &SocketHandler{
		hub:    hub,
		logger: logger.WithComponent("socket-handler"),
	}
}

// Connect upgrades the request to a websocket served by the hub
func (h *SocketHandler) Connect(c *gin.Context) {
	h.logger.Debug("Socket connecting", "user_id", middleware.GetUserID(c))
	h.hub.ServeHTTP(c.Writer, c.Request)
}

// AuthorizeFeedJoin admits joins to feeds:<feed>:<user> topics owned by the
// authenticated user of the connection
func AuthorizeFeedJoin(r *http.Request, topic string, _ json.RawMessage) error {
	parts := strings.Split(topic, ":")
	if len(parts) != 3 || parts[0] != "feeds" || parts[1] == "" || parts[2] == "" {
		return fmt.Errorf("%w: unknown topic %q", domain.ErrForbidden, topic)
	}
	if parts[2] != middleware.UserIDFromRequest(r) {
		return fmt.Errorf("%w: topic belongs to another user", domain.ErrForbidden)
	}
	return nil
}
