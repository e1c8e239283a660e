// Package chat 管理会话与消息
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ashwinyue/sanctuary/internal/model"
	"github.com/ashwinyue/sanctuary/internal/repository"
)

const (
	// ListLimit 会话列表最多返回的条数
	ListLimit = 100
	// titleRunes 自动标题取首条用户消息的字符数
	titleRunes = 30
)

var (
	// ErrInvalidRole 消息角色无效，助手消息只能由 relay 写入
	ErrInvalidRole = errors.New("invalid message role")
	// ErrNotEditable 只能编辑用户消息
	ErrNotEditable = errors.New("only user messages can be edited")
)

// Service 会话服务
type Service struct {
	repo repository.ChatStore
}

// NewService 创建会话服务
func NewService(repo repository.ChatStore) *Service {
	return &Service{repo: repo}
}

// ConversationDetail 会话及其消息
type ConversationDetail struct {
	*model.Conversation
	Messages []*model.Message `json:"messages"`
}

// CreateConversationRequest 创建会话请求
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// UpdateConversationRequest 更新会话请求
type UpdateConversationRequest struct {
	Title  *string `json:"title"`
	Pinned *bool   `json:"pinned"`
}

// CreateMessageRequest 创建消息请求
type CreateMessageRequest struct {
	Role        string `json:"role" binding:"required"`
	ContentText string `json:"content_text"`
	ImageData   string `json:"imageData"`
}

// EditMessageRequest 编辑消息请求
type EditMessageRequest struct {
	ContentText *string `json:"content_text"`
	ImageData   *string `json:"imageData"`
}

// DeriveTitle 由首条用户消息生成标题
func DeriveTitle(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return model.DefaultConversationTitle
	}
	runes := []rune(text)
	if len(runes) <= titleRunes {
		return text
	}
	return string(runes[:titleRunes]) + "..."
}

// ListConversations 列出会话
func (s *Service) ListConversations(ctx context.Context, ownerID, search string) ([]*model.Conversation, error) {
	convs, err := s.repo.ListConversations(ctx, ownerID, search, ListLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// CreateConversation 创建会话
func (s *Service) CreateConversation(ctx context.Context, ownerID string, req *CreateConversationRequest) (*model.Conversation, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = model.DefaultConversationTitle
	}

	conv := &model.Conversation{
		ID:        uuid.New().String(),
		UserID:    ownerID,
		Title:     title,
		StartedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation 获取会话及其消息
func (s *Service) GetConversation(ctx context.Context, ownerID, id string) (*ConversationDetail, error) {
	var (
		conv     *model.Conversation
		messages []*model.Message
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		conv, err = s.repo.GetConversation(gctx, ownerID, id)
		return err
	})
	g.Go(func() error {
		var err error
		messages, err = s.repo.ListMessages(gctx, ownerID, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	if messages == nil {
		messages = []*model.Message{}
	}
	return &ConversationDetail{Conversation: conv, Messages: messages}, nil
}

// EnsureConversation 确认会话存在且属于当前用户
func (s *Service) EnsureConversation(ctx context.Context, ownerID, id string) (*model.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// UpdateConversation 更新标题或置顶
func (s *Service) UpdateConversation(ctx context.Context, ownerID, id string, req *UpdateConversationRequest) (*model.Conversation, error) {
	updates := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			title = model.DefaultConversationTitle
		}
		updates["title"] = title
	}
	if req.Pinned != nil {
		updates["pinned"] = *req.Pinned
	}

	if len(updates) > 0 {
		if err := s.repo.UpdateConversation(ctx, ownerID, id, updates); err != nil {
			return nil, fmt.Errorf("failed to update conversation: %w", err)
		}
	}
	return s.EnsureConversation(ctx, ownerID, id)
}

// DeleteConversation 删除会话
func (s *Service) DeleteConversation(ctx context.Context, ownerID, id string) error {
	if err := s.repo.DeleteConversation(ctx, ownerID, id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// CreateMessage 追加用户或系统消息
//
// 会话的第一条用户消息会替换默认标题。
func (s *Service) CreateMessage(ctx context.Context, ownerID, conversationID string, req *CreateMessageRequest) (*model.Message, error) {
	switch req.Role {
	case model.RoleUser, model.RoleSystem:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, req.Role)
	}

	conv, err := s.EnsureConversation(ctx, ownerID, conversationID)
	if err != nil {
		return nil, err
	}

	var firstUser bool
	if req.Role == model.RoleUser {
		count, err := s.repo.CountMessagesByRole(ctx, ownerID, conversationID, model.RoleUser)
		if err != nil {
			return nil, fmt.Errorf("failed to count messages: %w", err)
		}
		firstUser = count == 0
	}

	msg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		UserID:         ownerID,
		Role:           req.Role,
		ContentText:    req.ContentText,
		ContentJSON:    model.NewContentJSON(req.ImageData),
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	updates := map[string]interface{}{"updated_at": time.Now().UTC()}
	if firstUser && conv.Title == model.DefaultConversationTitle {
		updates["title"] = DeriveTitle(req.ContentText)
	}
	if err := s.repo.UpdateConversation(ctx, ownerID, conversationID, updates); err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	return msg, nil
}

// ListMessages 获取会话消息
func (s *Service) ListMessages(ctx context.Context, ownerID, conversationID string) ([]*model.Message, error) {
	messages, err := s.repo.ListMessages(ctx, ownerID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// EditMessage 原地修改用户消息，ID 不变
//
// 只更新请求中出现的字段。ImageData 为空字符串时移除图片。
func (s *Service) EditMessage(ctx context.Context, ownerID, conversationID, messageID string, req *EditMessageRequest) (*model.Message, error) {
	msg, err := s.repo.GetMessage(ctx, ownerID, conversationID, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if msg.Role != model.RoleUser {
		return nil, ErrNotEditable
	}

	text := msg.ContentText
	if req.ContentText != nil {
		text = *req.ContentText
	}
	content := msg.ContentJSON
	if req.ImageData != nil {
		content = model.NewContentJSON(*req.ImageData)
	}
	if err := s.repo.UpdateUserMessage(ctx, ownerID, conversationID, messageID, text, content); err != nil {
		return nil, fmt.Errorf("failed to edit message: %w", err)
	}

	if text != msg.ContentText {
		if err := s.retitle(ctx, ownerID, conversationID, msg, text); err != nil {
			return nil, err
		}
	}

	msg.ContentText = text
	msg.ContentJSON = content
	return msg, nil
}

// retitle 编辑首条用户消息时同步自动标题，手动改过的标题不动
func (s *Service) retitle(ctx context.Context, ownerID, conversationID string, edited *model.Message, newText string) error {
	first, err := s.repo.FirstMessageByRole(ctx, ownerID, conversationID, model.RoleUser)
	if err != nil {
		return fmt.Errorf("failed to get first message: %w", err)
	}
	if first.ID != edited.ID {
		return nil
	}

	conv, err := s.EnsureConversation(ctx, ownerID, conversationID)
	if err != nil {
		return err
	}
	if conv.Title != DeriveTitle(edited.ContentText) {
		return nil
	}
	if err := s.repo.UpdateConversation(ctx, ownerID, conversationID, map[string]interface{}{
		"title": DeriveTitle(newText),
	}); err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	return nil
}

// TrimAfter 删除指定消息之后的所有消息，用于编辑后重新生成
func (s *Service) TrimAfter(ctx context.Context, ownerID, conversationID, afterMessageID string) (int64, error) {
	msg, err := s.repo.GetMessage(ctx, ownerID, conversationID, afterMessageID)
	if err != nil {
		return 0, fmt.Errorf("failed to get message: %w", err)
	}

	deleted, err := s.repo.DeleteMessagesAfter(ctx, ownerID, conversationID, msg.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to trim messages: %w", err)
	}
	return deleted, nil
}
