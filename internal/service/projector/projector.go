// Package projector 把存储的对话转换为模型接口需要的消息
package projector

import (
	"github.com/cloudwego/eino/schema"

	"github.com/ashwinyue/sanctuary/internal/model"
)

// Turn 与存储和接口无关的一轮对话
type Turn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	ImageData string `json:"imageData,omitempty"`
}

// ToProviderTurns 转换为模型消息
//
// 只保留 user 和 assistant 角色。带图片的用户消息转为多模态消息。
// latestImage 非空且最后一条是纯文本用户消息时，图片附加到最后一条上。
func ToProviderTurns(turns []Turn, latestImage string) []*schema.Message {
	out := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case model.RoleUser:
			if turn.ImageData != "" {
				out = append(out, multimodal(turn.Content, turn.ImageData))
			} else {
				out = append(out, schema.UserMessage(turn.Content))
			}
		case model.RoleAssistant:
			out = append(out, schema.AssistantMessage(turn.Content, nil))
		}
	}

	if latestImage != "" && len(out) > 0 {
		last := out[len(out)-1]
		if last.Role == schema.User && len(last.MultiContent) == 0 {
			out[len(out)-1] = multimodal(last.Content, latestImage)
		}
	}
	return out
}

// TurnsFromMessages 把存储的消息行转换为 Turn
func TurnsFromMessages(rows []*model.Message) []Turn {
	turns := make([]Turn, 0, len(rows))
	for _, row := range rows {
		turns = append(turns, Turn{
			Role:      row.Role,
			Content:   row.ContentText,
			ImageData: row.ImageData(),
		})
	}
	return turns
}

func multimodal(text, imageData string) *schema.Message {
	return &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: text},
			{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:    imageData,
					Detail: schema.ImageURLDetailAuto,
				},
			},
		},
	}
}
