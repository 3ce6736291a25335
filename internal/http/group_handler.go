package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"group-chat/internal/service"
)

type GroupHandler struct {
	logger *zap.Logger
	groups *service.GroupService
}

func NewGroupHandler(logger *zap.Logger, groups *service.GroupService) *GroupHandler {
	return &GroupHandler{logger: logger, groups: groups}
}

// CreateGroup maneja POST /groups. El body es opcional: {"uuid": "..."}.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req struct {
		ID string `json:"uuid"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("invalid create group request", zap.Error(err))
			badRequest(c, "invalid request")
			return
		}
	}

	group, err := h.groups.Create(c.Request.Context(), currentUserID(c), req.ID)
	if err != nil {
		respondError(c, h.logger, "create group", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Group created successfully", "group": group})
}

// ListGroups maneja GET /groups: los grupos del usuario autenticado.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.groups.Mine(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, h.logger, "list groups", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// JoinGroup maneja POST /groups/:uuid/join.
func (h *GroupHandler) JoinGroup(c *gin.Context) {
	p, err := h.groups.Join(c.Request.Context(), currentUserID(c), c.Param("uuid"))
	if err != nil {
		respondError(c, h.logger, "join group", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Joined group successfully", "participant": p})
}

// LeaveGroup maneja POST /groups/:uuid/leave.
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	if err := h.groups.Leave(c.Request.Context(), currentUserID(c), c.Param("uuid")); err != nil {
		respondError(c, h.logger, "leave group", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left group successfully"})
}
