package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amiyamandal-dev/feedsync/internal/api/middleware"
	"github.com/amiyamandal-dev/feedsync/internal/domain"
	"github.com/amiyamandal-dev/feedsync/internal/service"
	"github.com/amiyamandal-dev/feedsync/internal/validator"
	"github.com/amiyamandal-dev/feedsync/pkg/logger"
	"github.com/amiyamandal-dev/feedsync/pkg/response"
)

// FeedHandler serves user feeds
type FeedHandler struct {
	messageService *service.MessageService
	validator      *validator.Validator
	logger         *logger.Logger
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(messageService *service.MessageService, v *validator.Validator, logger *logger.Logger) *FeedHandler {
	return &FeedHandler{
		messageService: messageService,
		validator:      v,
		logger:         logger.WithComponent("feed-handler"),
	}
}

// Get returns one page of a feed as {entries, meta, page_info}
func (h *FeedHandler) Get(c *gin.Context) {
	userID, ok := h.authorizeUser(c)
	if !ok {
		return
	}
	feedID := c.Param("feed_id")

	parser := NewQueryParamParser(c)
	opts := parser.FeedOptions(h.validator)
	if err := parser.Error(); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	feed, err := h.messageService.ListFeed(c.Request.Context(), userID, feedID, opts)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			response.BadRequest(c, err.Error())
			return
		}
		h.logger.Error("Failed to get feed", "user_id", userID, "feed_id", feedID, "error", err)
		response.InternalServerError(c, "Failed to get feed")
		return
	}

	c.JSON(http.StatusOK, feed)
}

// CreateMessage adds a message to a feed and notifies its channel
func (h *FeedHandler) CreateMessage(c *gin.Context) {
	userID, ok := h.authorizeUser(c)
	if !ok {
		return
	}

	var req domain.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	msg, err := h.messageService.Send(c.Request.Context(), userID, c.Param("feed_id"), &req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			response.BadRequest(c, err.Error())
			return
		}
		h.logger.Error("Failed to create message", "user_id", userID, "error", err)
		response.InternalServerError(c, "Failed to create message")
		return
	}

	response.Created(c, msg)
}

// authorizeUser checks the path user against the token user
func (h *FeedHandler) authorizeUser(c *gin.Context) (string, bool) {
	userID := c.Param("user_id")
	if userID == "" {
		response.BadRequest(c, "User id is required")
		return "", false
	}
	if userID != middleware.GetUserID(c) {
		response.Forbidden(c, "User token does not match the requested user")
		return "", false
	}
	return userID, true
}
