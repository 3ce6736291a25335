package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"group-chat/internal/domain"
	"group-chat/internal/service"
)

// UserHandler mantiene dependencias para endpoints de usuarios y autenticación.
type UserHandler struct {
	logger   *zap.Logger
	userServ *service.UserService
	authServ *service.AuthService
}

func NewUserHandler(logger *zap.Logger, userServ *service.UserService, authServ *service.AuthService) *UserHandler {
	return &UserHandler{
		logger:   logger,
		userServ: userServ,
		authServ: authServ,
	}
}

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

// Register maneja POST /auth/register.
func (h *UserHandler) Register(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		badRequest(c, "invalid request")
		return
	}

	user, err := h.userServ.Register(c.Request.Context(), service.RegisterInput{Name: req.Name})
	if err != nil {
		respondError(c, h.logger, "register", err)
		return
	}
	h.respondWithTokens(c, http.StatusCreated, "User created successfully", user)
}

// Login maneja POST /auth/login.
func (h *UserHandler) Login(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		badRequest(c, "invalid request")
		return
	}

	user, err := h.userServ.Login(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, h.logger, "login", err)
		return
	}
	h.respondWithTokens(c, http.StatusOK, "Login successful", user)
}

// Me maneja GET /auth/me.
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.userServ.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, h.logger, "get current user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// RefreshToken maneja POST /auth/refresh.
func (h *UserHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid refresh request", zap.Error(err))
		badRequest(c, "invalid request")
		return
	}
	tokens, err := h.authServ.Refresh(req.RefreshToken)
	if err != nil {
		respondError(c, h.logger, "refresh", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tokens.AccessToken, "tokens": tokens})
}

// Logout maneja POST /auth/logout.
func (h *UserHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid logout request", zap.Error(err))
		badRequest(c, "invalid request")
		return
	}
	_ = h.authServ.Revoke(req.RefreshToken)
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) respondWithTokens(c *gin.Context, status int, msg string, user domain.User) {
	tokens, err := h.authServ.Issue(user.ID, user.Name)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens", "kind": "internal"})
		return
	}
	c.JSON(status, gin.H{
		"message":      msg,
		"access_token": tokens.AccessToken,
		"tokens":       tokens,
		"user":         user,
	})
}
