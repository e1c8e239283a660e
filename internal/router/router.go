package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/sanctuary/internal/handler"
	"github.com/ashwinyue/sanctuary/internal/middleware"
	"github.com/ashwinyue/sanctuary/internal/service"
)

// SetupRouter 设置路由，chatLimiter 为空时不限流
func SetupRouter(h *handler.Handlers, svc *service.Services, chatLimiter *middleware.FixedWindowLimiter) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.LoggingMiddleware("/health"))
	r.Use(middleware.CORSMiddleware(svc.Config.Server.CORSOrigins))

	// 健康检查
	r.GET("/health", h.System.Health)

	// API v1
	v1 := r.Group("/api/v1")

	// 公开接口
	public := v1.Group("/auth")
	{
		public.POST("/register", h.Auth.Register)
		public.POST("/login", h.Auth.Login)
	}

	authed := v1.Group("")
	authed.Use(middleware.RequireAuth(svc.Auth))

	// Auth 账号
	account := authed.Group("/auth")
	{
		account.GET("/profile", h.Auth.GetProfile)
		account.PATCH("/profile", h.Auth.UpdateProfile)
		account.POST("/logout", h.Auth.Logout)
		account.PUT("/password", h.Auth.ChangePassword)
	}

	// Chat 聊天
	chat := authed.Group("/chat")
	{
		send := []gin.HandlerFunc{h.Chat.Chat}
		if chatLimiter != nil {
			send = append([]gin.HandlerFunc{middleware.RateLimitMiddleware(chatLimiter, "chat")}, send...)
		}
		chat.POST("", send...)
		chat.POST("/:id/stop", h.Chat.Stop)
		chat.GET("/:id/status", h.Chat.Status)
	}
	authed.GET("/models", h.Chat.ListModels)

	// Conversation 会话与消息
	convs := authed.Group("/conversations")
	{
		convs.GET("", h.Conversation.List)
		convs.POST("", h.Conversation.Create)
		convs.GET("/:id", h.Conversation.Get)
		convs.PATCH("/:id", h.Conversation.Update)
		convs.DELETE("/:id", h.Conversation.Delete)
		convs.POST("/:id/messages", h.Message.Create)
		convs.PATCH("/:id/messages/:messageId", h.Message.Edit)
		convs.DELETE("/:id/messages", h.Message.Trim)
	}

	// Settings 设置与记忆
	authed.GET("/settings", h.Settings.Get)
	authed.PATCH("/settings", h.Settings.Update)
	authed.GET("/memory", h.Settings.GetMemory)
	authed.PUT("/memory", h.Settings.SaveMemory)

	// Album 相册
	albums := authed.Group("/album")
	{
		albums.GET("", h.Album.List)
		albums.POST("", h.Album.Create)
		albums.PATCH("/:id", h.Album.Update)
		albums.DELETE("/:id", h.Album.Delete)
		albums.GET("/:id/image", h.Album.Image)
	}

	// Usage / Export
	authed.GET("/usage", h.Usage.Monthly)
	authed.GET("/export", h.Export.Export)
	authed.GET("/system/info", h.System.GetSystemInfo)

	return r
}
