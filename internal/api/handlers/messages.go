package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amiyamandal-dev/feedsync/internal/api/middleware"
	"github.com/amiyamandal-dev/feedsync/internal/domain"
	"github.com/amiyamandal-dev/feedsync/internal/service"
	"github.com/amiyamandal-dev/feedsync/pkg/logger"
	"github.com/amiyamandal-dev/feedsync/pkg/response"
)

// MessageHandler handles message status updates
type MessageHandler struct {
	messageService *service.MessageService
	logger         *logger.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messageService *service.MessageService, logger *logger.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		logger:         logger.WithComponent("message-handler"),
	}
}

// UpdateStatus handles PUT and DELETE /v1/messages/:id/:action. DELETE on a
// set action (e.g. DELETE .../read) means the inverse one.
func (h *MessageHandler) UpdateStatus(c *gin.Context) {
	action, err := domain.ParseStatusAction(c.Param("action"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if c.Request.Method == http.MethodDelete && !action.IsUnset() {
		action = action.Inverse()
	}

	updated, err := h.messageService.UpdateStatus(c.Request.Context(), middleware.GetUserID(c), []string{c.Param("id")}, action)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated[0])
}

// BatchUpdateStatus handles POST /v1/messages/batch/:action
func (h *MessageHandler) BatchUpdateStatus(c *gin.Context) {
	action, err := domain.ParseStatusAction(c.Param("action"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var req domain.BatchStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	updated, err := h.messageService.UpdateStatus(c.Request.Context(), middleware.GetUserID(c), req.MessageIDs, action)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (h *MessageHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrMessageNotFound):
		response.NotFound(c, "Message not found")
	case errors.Is(err, domain.ErrInvalidInput):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error("Failed to update message status", "error", err)
		response.InternalServerError(c, "Failed to update message status")
	}
}
