package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/sanctuary/internal/middleware"
	"github.com/ashwinyue/sanctuary/internal/service"
)

// UsageHandler 用量处理器
type UsageHandler struct {
	svc *service.Services
}

// NewUsageHandler 创建用量处理器
func NewUsageHandler(svc *service.Services) *UsageHandler {
	return &UsageHandler{svc: svc}
}

// Monthly 按月汇总费用，year/month 缺省为当前月
func (h *UsageHandler) Monthly(c *gin.Context) {
	year, err := optionalInt(c, "year")
	if err != nil {
		BadRequest(c, "year must be an integer")
		return
	}
	month, err := optionalInt(c, "month")
	if err != nil {
		BadRequest(c, "month must be an integer")
		return
	}

	report, err := h.svc.Usage.Monthly(c.Request.Context(), middleware.GetUserID(c), year, month)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, report)
}

func optionalInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
