package repository

import (
	"context"
	"strings"
	"time"

	"github.com/ashwinyue/sanctuary/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChatRepository 会话与消息数据访问，所有查询都按 owner 过滤
type ChatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建聊天仓库
func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateConversation 创建会话
func (r *ChatRepository) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

// GetConversation 获取会话
func (r *ChatRepository) GetConversation(ctx context.Context, ownerID, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, ownerID).First(&conv).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

// ListConversations 列出会话，置顶优先，其次按更新时间倒序
// limit <= 0 时不限制数量
func (r *ChatRepository) ListConversations(ctx context.Context, ownerID, search string, limit int) ([]*model.Conversation, error) {
	var convs []*model.Conversation
	query := r.db.WithContext(ctx).Where("user_id = ?", ownerID)
	if search = strings.TrimSpace(search); search != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	query = query.Order("pinned DESC").Order("updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&convs).Error
	return convs, err
}

// UpdateConversation 更新会话字段
func (r *ChatRepository) UpdateConversation(ctx context.Context, ownerID, id string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchConversation 刷新会话的更新时间
func (r *ChatRepository) TouchConversation(ctx context.Context, ownerID, id string) error {
	return r.UpdateConversation(ctx, ownerID, id, map[string]interface{}{"updated_at": time.Now().UTC()})
}

// DeleteConversation 删除会话及其消息
func (r *ChatRepository) DeleteConversation(ctx context.Context, ownerID, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, ownerID).Delete(&model.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("conversation_id = ? AND user_id = ?", id, ownerID).Delete(&model.Message{}).Error
	})
}

// CreateMessage 创建消息
func (r *ChatRepository) CreateMessage(ctx context.Context, msg *model.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// ListMessages 获取会话消息，按创建时间升序
func (r *ChatRepository) ListMessages(ctx context.Context, ownerID, conversationID string) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, ownerID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

// GetMessage 获取单条消息
func (r *ChatRepository) GetMessage(ctx context.Context, ownerID, conversationID, messageID string) (*model.Message, error) {
	var message model.Message
	err := r.db.WithContext(ctx).
		Where("id = ? AND conversation_id = ? AND user_id = ?", messageID, conversationID, ownerID).
		First(&message).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &message, nil
}

// UpdateUserMessage 原地修改用户消息的内容，助手消息不可修改
func (r *ChatRepository) UpdateUserMessage(ctx context.Context, ownerID, conversationID, messageID, text string, content datatypes.JSON) error {
	res := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("id = ? AND conversation_id = ? AND user_id = ? AND role = ?", messageID, conversationID, ownerID, model.RoleUser).
		Updates(map[string]interface{}{
			"content_text": text,
			"content_json": content,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMessagesAfter 删除会话中创建时间晚于 after 的消息
func (r *ChatRepository) DeleteMessagesAfter(ctx context.Context, ownerID, conversationID string, after time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ? AND created_at > ?", conversationID, ownerID, after).
		Delete(&model.Message{})
	return res.RowsAffected, res.Error
}

// CountMessagesByRole 统计会话中某角色的消息数
func (r *ChatRepository) CountMessagesByRole(ctx context.Context, ownerID, conversationID, role string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("conversation_id = ? AND user_id = ? AND role = ?", conversationID, ownerID, role).
		Count(&count).Error
	return count, err
}

// FirstMessageByRole 获取会话中某角色的第一条消息
func (r *ChatRepository) FirstMessageByRole(ctx context.Context, ownerID, conversationID, role string) (*model.Message, error) {
	var message model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ? AND role = ?", conversationID, ownerID, role).
		Order("created_at ASC").
		First(&message).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &message, nil
}

// ListAssistantMessagesBetween 获取时间区间 [from, to) 内的助手消息，用于用量统计
func (r *ChatRepository) ListAssistantMessagesBetween(ctx context.Context, ownerID string, from, to time.Time) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND role = ? AND created_at >= ? AND created_at < ?", ownerID, model.RoleAssistant, from, to).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

// ListAllMessages 获取用户全部消息，用于导出
func (r *ChatRepository) ListAllMessages(ctx context.Context, ownerID string) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}
