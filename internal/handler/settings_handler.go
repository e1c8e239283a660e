package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/sanctuary/internal/middleware"
	"github.com/ashwinyue/sanctuary/internal/service"
	"github.com/ashwinyue/sanctuary/internal/service/settings"
)

// SettingsHandler 设置与记忆处理器
type SettingsHandler struct {
	svc *service.Services
}

// NewSettingsHandler 创建设置处理器
func NewSettingsHandler(svc *service.Services) *SettingsHandler {
	return &SettingsHandler{svc: svc}
}

// MemoryRequest 记忆保存请求
type MemoryRequest struct {
	Markdown string `json:"markdown"`
}

// Get 获取设置
func (h *SettingsHandler) Get(c *gin.Context) {
	s, err := h.svc.Settings.Get(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, s)
}

// Update 部分更新设置
func (h *SettingsHandler) Update(c *gin.Context) {
	var req settings.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	s, err := h.svc.Settings.Update(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, s)
}

// GetMemory 获取记忆笔记
func (h *SettingsHandler) GetMemory(c *gin.Context) {
	note, err := h.svc.Settings.GetMemory(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, note)
}

// SaveMemory 覆盖记忆笔记
func (h *SettingsHandler) SaveMemory(c *gin.Context) {
	var req MemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	note, err := h.svc.Settings.SaveMemory(c.Request.Context(), middleware.GetUserID(c), req.Markdown)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, note)
}
