package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/sanctuary/internal/service"
	"github.com/ashwinyue/sanctuary/internal/service/catalog"
)

// SystemHandler 系统处理器
type SystemHandler struct {
	svc *service.Services
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(svc *service.Services) *SystemHandler {
	return &SystemHandler{svc: svc}
}

// Health 健康检查
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"active_streams": h.svc.SessionMgr.ActiveCount(),
	})
}

// SystemInfo 系统信息
type SystemInfo struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	Environment   string `json:"environment"`
	Provider      string `json:"provider"`
	DefaultModel  string `json:"default_model"`
	ModelCount    int    `json:"model_count"`
	Storage       string `json:"storage"`
	Redis         bool   `json:"redis"`
	RateLimit     int64  `json:"rate_limit_per_minute"`
	ActiveStreams int    `json:"active_streams"`
}

// GetSystemInfo 获取系统信息
// GET /api/v1/system/info
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	cfg := h.svc.Config

	storage := cfg.Storage.Type
	if storage == "" {
		storage = "local"
	}
	provider := cfg.AI.Provider
	if provider == "" {
		provider = "openai"
	}
	var rateLimit int64
	if cfg.RateLimit.Enabled && cfg.Redis.Enabled() {
		rateLimit = cfg.RateLimit.ChatPerMinute
	}

	Success(c, SystemInfo{
		Name:          cfg.App.Name,
		Version:       cfg.App.Version,
		Environment:   cfg.App.Environment,
		Provider:      provider,
		DefaultModel:  catalog.DefaultModelID,
		ModelCount:    len(catalog.Models),
		Storage:       storage,
		Redis:         cfg.Redis.Enabled(),
		RateLimit:     rateLimit,
		ActiveStreams: h.svc.SessionMgr.ActiveCount(),
	})
}
