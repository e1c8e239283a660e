package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/sanctuary/internal/middleware"
	"github.com/ashwinyue/sanctuary/internal/service"
	"github.com/ashwinyue/sanctuary/internal/service/chat"
)

// ConversationHandler 会话处理器
type ConversationHandler struct {
	svc *service.Services
}

// NewConversationHandler 创建会话处理器
func NewConversationHandler(svc *service.Services) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

// List 列出会话，置顶优先，支持标题搜索
func (h *ConversationHandler) List(c *gin.Context) {
	convs, err := h.svc.Chat.ListConversations(c.Request.Context(), middleware.GetUserID(c), c.Query("search"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"conversations": convs})
}

// Create 创建会话
func (h *ConversationHandler) Create(c *gin.Context) {
	var req chat.CreateConversationRequest
	// 允许空请求体
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "Invalid parameters: "+err.Error())
			return
		}
	}

	conv, err := h.svc.Chat.CreateConversation(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, conv)
}

// Get 获取会话及其全部消息
func (h *ConversationHandler) Get(c *gin.Context) {
	detail, err := h.svc.Chat.GetConversation(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, detail)
}

// Update 重命名或置顶
func (h *ConversationHandler) Update(c *gin.Context) {
	var req chat.UpdateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	conv, err := h.svc.Chat.UpdateConversation(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), &req)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, conv)
}

// Delete 删除会话及其消息
func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.svc.Chat.DeleteConversation(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		Error(c, err)
		return
	}
	NoContent(c)
}
