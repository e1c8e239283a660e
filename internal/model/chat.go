package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// DefaultConversationTitle 新会话默认标题
const DefaultConversationTitle = "New chat"

// Conversation 会话
type Conversation struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"index;size:36;not null" json:"user_id"`
	Title     string    `gorm:"size:255" json:"title"`
	Pinned    bool      `gorm:"index;default:false" json:"pinned"`
	StartedAt time.Time `json:"started_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`
	Messages  []Message `gorm:"foreignKey:ConversationID" json:"-"`
}

// Message 会话消息
//
// Model、TokenInput、TokenOutput、CostUSD 仅在助手消息完成后写入。
// CostUSD 为空表示模型不在价目表中。
type Message struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string         `gorm:"index;size:36;not null" json:"conversation_id"`
	UserID         string         `gorm:"index;size:36;not null" json:"user_id"`
	Role           string         `gorm:"size:20;index" json:"role"`
	ContentText    string         `gorm:"type:text" json:"content_text"`
	ContentJSON    datatypes.JSON `json:"content_json,omitempty"`
	Model          *string        `gorm:"size:100" json:"model,omitempty"`
	TokenInput     *int           `json:"token_input,omitempty"`
	TokenOutput    *int           `json:"token_output,omitempty"`
	CostUSD        *float64       `json:"cost_usd,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

// MessageContent content_json 的结构
type MessageContent struct {
	ImageData string `json:"imageData,omitempty"`
}

// TableName 指定表名
func (Conversation) TableName() string {
	return "conversations"
}

func (Message) TableName() string {
	return "messages"
}

// ImageData 返回消息附带的图片 data URL
func (m *Message) ImageData() string {
	if len(m.ContentJSON) == 0 {
		return ""
	}
	var content MessageContent
	if err := json.Unmarshal(m.ContentJSON, &content); err != nil {
		return ""
	}
	return content.ImageData
}

// NewContentJSON 构造 content_json，无图片时返回 nil
func NewContentJSON(imageData string) datatypes.JSON {
	if imageData == "" {
		return nil
	}
	b, err := json.Marshal(MessageContent{ImageData: imageData})
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
