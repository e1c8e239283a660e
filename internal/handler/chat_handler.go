package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/sanctuary/internal/middleware"
	"github.com/ashwinyue/sanctuary/internal/service"
	"github.com/ashwinyue/sanctuary/internal/service/catalog"
	"github.com/ashwinyue/sanctuary/internal/service/event"
	"github.com/ashwinyue/sanctuary/internal/service/projector"
	"github.com/ashwinyue/sanctuary/internal/service/relay"
)

// ChatHandler 聊天处理器
type ChatHandler struct {
	svc *service.Services
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(svc *service.Services) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// ChatRequest 聊天请求
//
// 可选字段缺省时从用户设置和记忆中读取。
type ChatRequest struct {
	ConversationID     string           `json:"conversationId"`
	Messages           []projector.Turn `json:"messages"`
	Model              string           `json:"model"`
	CustomInstructions *string          `json:"customInstructions"`
	MemoryMarkdown     *string          `json:"memoryMarkdown"`
	MemoryEnabled      *bool            `json:"memoryEnabled"`
	ImageData          string           `json:"imageData"`
}

// Chat 流式聊天
//
// 所有参数错误都在写出第一个事件之前以 JSON 返回。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	ownerID := middleware.GetUserID(c)

	if req.ConversationID != "" {
		if _, err := h.svc.Chat.EnsureConversation(ctx, ownerID, req.ConversationID); err != nil {
			Error(c, err)
			return
		}
	}

	rr := &relay.Request{
		OwnerID:        ownerID,
		ConversationID: req.ConversationID,
		Messages:       req.Messages,
		ModelID:        req.Model,
		ImageData:      req.ImageData,
	}
	if err := h.fillDefaults(c, &req, rr); err != nil {
		Error(c, err)
		return
	}

	events, err := h.svc.Relay.Stream(ctx, rr)
	if err != nil {
		Error(c, err)
		return
	}

	// 设置 SSE 响应头
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	// 客户端断开后 ctx 被取消，relay 会自行关闭 channel
	writeFailed := false
	for ev := range events {
		if writeFailed {
			continue
		}
		frame, err := event.Encode(ev)
		if err != nil {
			log.Printf("[Chat] failed to encode %s event: %v", ev.Type(), err)
			continue
		}
		if _, err := c.Writer.Write(frame); err != nil {
			log.Printf("[Chat] client went away: %v", err)
			writeFailed = true
			continue
		}
		c.Writer.Flush()
	}
}

// fillDefaults 用设置和记忆补全请求中缺省的字段
func (h *ChatHandler) fillDefaults(c *gin.Context, req *ChatRequest, rr *relay.Request) error {
	if req.CustomInstructions != nil && req.MemoryMarkdown != nil && req.MemoryEnabled != nil && req.Model != "" {
		rr.CustomInstructions = *req.CustomInstructions
		rr.MemoryMarkdown = *req.MemoryMarkdown
		rr.MemoryEnabled = *req.MemoryEnabled
		return nil
	}

	pc, err := h.svc.Settings.LoadPromptContext(c.Request.Context(), rr.OwnerID)
	if err != nil {
		return err
	}

	rr.CustomInstructions = pc.CustomInstructions
	if req.CustomInstructions != nil {
		rr.CustomInstructions = *req.CustomInstructions
	}
	rr.MemoryMarkdown = pc.MemoryMarkdown
	if req.MemoryMarkdown != nil {
		rr.MemoryMarkdown = *req.MemoryMarkdown
	}
	rr.MemoryEnabled = pc.MemoryEnabled
	if req.MemoryEnabled != nil {
		rr.MemoryEnabled = *req.MemoryEnabled
	}
	if rr.ModelID == "" && catalog.IsKnown(pc.DefaultModel) {
		rr.ModelID = pc.DefaultModel
	}
	return nil
}

// Stop 停止会话中进行中的回复
func (h *ChatHandler) Stop(c *gin.Context) {
	progress, stopped := h.svc.Relay.Stop(middleware.GetUserID(c), c.Param("id"))
	if !stopped {
		Success(c, gin.H{"stopped": false})
		return
	}
	Success(c, gin.H{
		"stopped": true,
		"chunks":  progress.Chunks,
		"partial": progress.Partial,
	})
}

// Status 查询会话中进行中的回复
func (h *ChatHandler) Status(c *gin.Context) {
	progress, streaming := h.svc.Relay.Progress(middleware.GetUserID(c), c.Param("id"))
	if !streaming {
		Success(c, gin.H{"streaming": false})
		return
	}
	Success(c, gin.H{
		"streaming": true,
		"progress":  progress,
	})
}

// ListModels 列出可选模型及价格
func (h *ChatHandler) ListModels(c *gin.Context) {
	Success(c, gin.H{
		"models":  catalog.Models,
		"default": catalog.DefaultModelID,
	})
}
