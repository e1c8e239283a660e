// Package repository 定义数据访问接口
// 接口抽象使依赖注入和单元测试成为可能
package repository

import (
	"context"
	"time"

	"github.com/ashwinyue/sanctuary/internal/model"
	"gorm.io/datatypes"
)

// ChatStore 会话与消息数据访问接口
type ChatStore interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, ownerID, id string) (*model.Conversation, error)
	ListConversations(ctx context.Context, ownerID, search string, limit int) ([]*model.Conversation, error)
	UpdateConversation(ctx context.Context, ownerID, id string, updates map[string]interface{}) error
	TouchConversation(ctx context.Context, ownerID, id string) error
	DeleteConversation(ctx context.Context, ownerID, id string) error

	CreateMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, ownerID, conversationID string) ([]*model.Message, error)
	GetMessage(ctx context.Context, ownerID, conversationID, messageID string) (*model.Message, error)
	UpdateUserMessage(ctx context.Context, ownerID, conversationID, messageID, text string, content datatypes.JSON) error
	DeleteMessagesAfter(ctx context.Context, ownerID, conversationID string, after time.Time) (int64, error)
	CountMessagesByRole(ctx context.Context, ownerID, conversationID, role string) (int64, error)
	FirstMessageByRole(ctx context.Context, ownerID, conversationID, role string) (*model.Message, error)
	ListAssistantMessagesBetween(ctx context.Context, ownerID string, from, to time.Time) ([]*model.Message, error)
	ListAllMessages(ctx context.Context, ownerID string) ([]*model.Message, error)
}

// SettingsStore 设置与记忆数据访问接口
type SettingsStore interface {
	GetSettings(ctx context.Context, ownerID string) (*model.Settings, error)
	SaveSettings(ctx context.Context, settings *model.Settings) error
	GetMemory(ctx context.Context, ownerID string) (*model.MemoryNote, error)
	SaveMemory(ctx context.Context, note *model.MemoryNote) error
}

// AlbumStore 相册数据访问接口
type AlbumStore interface {
	Create(ctx context.Context, item *model.AlbumItem) error
	Get(ctx context.Context, ownerID, id string) (*model.AlbumItem, error)
	List(ctx context.Context, ownerID string) ([]*model.AlbumItem, error)
	Update(ctx context.Context, ownerID, id string, updates map[string]interface{}) error
	Delete(ctx context.Context, ownerID, id string) error
}

// AuthStore 认证数据访问接口
type AuthStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	CreateToken(ctx context.Context, token *model.AuthToken) error
	GetTokenByValue(ctx context.Context, tokenValue string) (*model.AuthToken, error)
	RevokeToken(ctx context.Context, tokenValue string) error
	RevokeTokensByUserID(ctx context.Context, userID string) error
	DeleteExpiredTokens(ctx context.Context) error
}

// 确保实现了接口
var (
	_ ChatStore     = (*ChatRepository)(nil)
	_ SettingsStore = (*SettingsRepository)(nil)
	_ AlbumStore    = (*AlbumRepository)(nil)
	_ AuthStore     = (*AuthRepository)(nil)
)
