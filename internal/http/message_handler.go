package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"group-chat/internal/domain"
	"group-chat/internal/pagination"
	"group-chat/internal/service"
)

// MessageHandler atiende /messages y el historial por cursor de /groups/:uuid/messages.
type MessageHandler struct {
	logger   *zap.Logger
	messages *service.MessageService
}

func NewMessageHandler(logger *zap.Logger, messages *service.MessageService) *MessageHandler {
	return &MessageHandler{logger: logger, messages: messages}
}

func payloads(msgs []domain.Message) []domain.MessagePayload {
	return lo.Map(msgs, func(m domain.Message, _ int) domain.MessagePayload { return m.Payload() })
}

// PostMessage maneja POST /messages.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	var req struct {
		GroupID string  `json:"group_uuid"`
		Content string  `json:"content"`
		File    *string `json:"file"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid post message request", zap.Error(err))
		badRequest(c, "invalid request")
		return
	}

	msg, err := h.messages.Post(c.Request.Context(), currentUserID(c), service.PostMessageInput{
		GroupID: req.GroupID,
		Content: req.Content,
		File:    req.File,
	})
	if err != nil {
		respondError(c, h.logger, "post message", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Message sent successfully", "data": msg.Payload()})
}

// ListMessages maneja GET /messages (paginación por offset).
func (h *MessageHandler) ListMessages(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		respondError(c, h.logger, "list messages", err)
		return
	}
	perPage, err := queryInt(c, "per_page", pagination.DefaultLimit)
	if err != nil {
		respondError(c, h.logger, "list messages", err)
		return
	}

	msgs, meta, err := h.messages.List(c.Request.Context(), currentUserID(c), service.ListRequest{
		GroupID:  c.Query("group_uuid"),
		SenderID: c.Query("sender_uuid"),
		Page:     page,
		PerPage:  perPage,
	})
	if err != nil {
		respondError(c, h.logger, "list messages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": payloads(msgs), "pagination": meta})
}

// SearchMessages maneja GET /messages/search.
func (h *MessageHandler) SearchMessages(c *gin.Context) {
	limit, err := queryInt(c, "limit", pagination.DefaultLimit)
	if err != nil {
		respondError(c, h.logger, "search messages", err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		respondError(c, h.logger, "search messages", err)
		return
	}
	query := c.Query("q")

	msgs, err := h.messages.Search(c.Request.Context(), currentUserID(c), query, limit, offset)
	if err != nil {
		respondError(c, h.logger, "search messages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": payloads(msgs), "total": len(msgs)})
}

// GetMessage maneja GET /messages/:id.
func (h *MessageHandler) GetMessage(c *gin.Context) {
	id, ok := h.messageID(c)
	if !ok {
		return
	}
	msg, err := h.messages.Get(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		respondError(c, h.logger, "get message", err)
		return
	}
	c.JSON(http.StatusOK, msg.Payload())
}

// UpdateMessage maneja PUT /messages/:id.
func (h *MessageHandler) UpdateMessage(c *gin.Context) {
	id, ok := h.messageID(c)
	if !ok {
		return
	}
	var req struct {
		Content *string `json:"content"`
		File    *string `json:"file"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update message request", zap.Error(err))
		badRequest(c, "invalid request")
		return
	}

	msg, err := h.messages.Update(c.Request.Context(), currentUserID(c), id, service.UpdateMessageInput{
		Content: req.Content,
		File:    req.File,
	})
	if err != nil {
		respondError(c, h.logger, "update message", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message updated successfully", "data": msg.Payload()})
}

// DeleteMessage maneja DELETE /messages/:id (soft delete).
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	id, ok := h.messageID(c)
	if !ok {
		return
	}
	if _, err := h.messages.Delete(c.Request.Context(), currentUserID(c), id); err != nil {
		respondError(c, h.logger, "delete message", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message deleted successfully"})
}

// GroupMessages maneja GET /groups/:uuid/messages (paginación por cursor).
func (h *MessageHandler) GroupMessages(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		respondError(c, h.logger, "group messages", err)
		return
	}

	res, err := h.messages.Page(c.Request.Context(), currentUserID(c), service.PageRequest{
		GroupID:   c.Param("uuid"),
		Cursor:    c.Query("cursor"),
		Limit:     limit,
		Direction: c.Query("direction"),
	})
	if err != nil {
		respondError(c, h.logger, "group messages", err)
		return
	}

	var next *string
	if res.NextCursor != nil {
		token := pagination.Encode(*res.NextCursor)
		next = &token
	}
	c.JSON(http.StatusOK, gin.H{
		"messages":    payloads(res.Items),
		"next_cursor": next,
		"has_more":    res.HasMore,
	})
}

func (h *MessageHandler) messageID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid message id")
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, validationErr(name + " must be an integer")
	}
	return v, nil
}
