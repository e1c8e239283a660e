package handler

import (
	"github.com/ashwinyue/sanctuary/internal/service"
)

// Handlers 处理器集合
type Handlers struct {
	Auth         *AuthHandler
	Chat         *ChatHandler
	Conversation *ConversationHandler
	Message      *MessageHandler
	Settings     *SettingsHandler
	Album        *AlbumHandler
	Usage        *UsageHandler
	Export       *ExportHandler
	System       *SystemHandler
}

// NewHandlers 创建所有处理器
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Auth:         NewAuthHandler(svc),
		Chat:         NewChatHandler(svc),
		Conversation: NewConversationHandler(svc),
		Message:      NewMessageHandler(svc),
		Settings:     NewSettingsHandler(svc),
		Album:        NewAlbumHandler(svc),
		Usage:        NewUsageHandler(svc),
		Export:       NewExportHandler(svc),
		System:       NewSystemHandler(svc),
	}
}
