package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"group-chat/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	authServ *service.AuthService,
	userH *UserHandler,
	messageH *MessageHandler,
	groupH *GroupHandler,
	streamH *StreamHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging y recovery. El content-type JSON va solo en la API.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	requireAuth := JWTAuthMiddleware(authServ)

	auth := r.Group("/auth", jsonContentTypeMiddleware())
	auth.POST("/register", userH.Register)
	auth.POST("/login", userH.Login)
	auth.POST("/refresh", userH.RefreshToken)
	auth.POST("/logout", userH.Logout)
	auth.GET("/me", requireAuth, userH.Me)

	messages := r.Group("/messages", jsonContentTypeMiddleware(), requireAuth)
	messages.POST("", messageH.PostMessage)
	messages.GET("", messageH.ListMessages)
	messages.GET("/search", messageH.SearchMessages)
	messages.GET("/:id", messageH.GetMessage)
	messages.PUT("/:id", messageH.UpdateMessage)
	messages.DELETE("/:id", messageH.DeleteMessage)

	groups := r.Group("/groups", jsonContentTypeMiddleware(), requireAuth)
	groups.POST("", groupH.CreateGroup)
	groups.GET("", groupH.ListGroups)
	groups.GET("/:uuid/messages", messageH.GroupMessages)
	groups.POST("/:uuid/join", groupH.JoinGroup)
	groups.POST("/:uuid/leave", groupH.LeaveGroup)

	// SSE: el token se valida dentro de la sesión para responder con frame de error.
	streams := r.Group("/stream")
	streams.GET("/group", streamH.StreamGroup)
	streams.GET("/all", streamH.StreamAll)
	streams.GET("/health", streamH.Health)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
