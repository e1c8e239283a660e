package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/sanctuary/internal/middleware"
	"github.com/ashwinyue/sanctuary/internal/service"
	"github.com/ashwinyue/sanctuary/internal/service/chat"
)

// MessageHandler 消息处理器
type MessageHandler struct {
	svc *service.Services
}

// NewMessageHandler 创建消息处理器
func NewMessageHandler(svc *service.Services) *MessageHandler {
	return &MessageHandler{svc: svc}
}

// TrimRequest 截断请求
type TrimRequest struct {
	AfterMessageID string `json:"afterMessageId" binding:"required"`
}

// Create godoc
// @Summary      保存消息
// @Description  保存一条用户或助手消息，首条用户消息会生成会话标题
// @Tags         消息
// @Accept       json
// @Produce      json
// @Param        id    path      string                     true  "会话ID"
// @Param        body  body      chat.CreateMessageRequest  true  "消息内容"
// @Success      201   {object}  Response
// @Failure      400   {object}  Response
// @Failure      404   {object}  Response
// @Security     Bearer
// @Router       /conversations/{id}/messages [post]
func (h *MessageHandler) Create(c *gin.Context) {
	var req chat.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	msg, err := h.svc.Chat.CreateMessage(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), &req)
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, msg)
}

// Edit godoc
// @Summary      编辑用户消息
// @Description  原地修改用户消息的文本和图片，imageData 为空字符串时移除图片
// @Tags         消息
// @Accept       json
// @Produce      json
// @Param        id         path      string                   true  "会话ID"
// @Param        messageId  path      string                   true  "消息ID"
// @Param        body       body      chat.EditMessageRequest  true  "新内容"
// @Success      200        {object}  Response
// @Security     Bearer
// @Router       /conversations/{id}/messages/{messageId} [patch]
func (h *MessageHandler) Edit(c *gin.Context) {
	var req chat.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	msg, err := h.svc.Chat.EditMessage(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), c.Param("messageId"), &req)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, msg)
}

// Trim 删除指定消息之后的所有消息，用于编辑后重新生成
func (h *MessageHandler) Trim(c *gin.Context) {
	var req TrimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	deleted, err := h.svc.Chat.TrimAfter(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.AfterMessageID)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"deleted": deleted})
}
