package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/sanctuary/internal/middleware"
	"github.com/ashwinyue/sanctuary/internal/service"
	"github.com/ashwinyue/sanctuary/internal/service/export"
)

// ExportHandler 导出处理器
type ExportHandler struct {
	svc *service.Services
}

// NewExportHandler 创建导出处理器
func NewExportHandler(svc *service.Services) *ExportHandler {
	return &ExportHandler{svc: svc}
}

// Export 以附件形式下载导出文件
func (h *ExportHandler) Export(c *gin.Context) {
	format := export.Format(c.DefaultQuery("format", string(export.FormatJSON)))

	f, err := h.svc.Export.Export(c.Request.Context(), middleware.GetUserID(c), format, c.Query("conversation_id"))
	if err != nil {
		Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	c.Data(http.StatusOK, f.ContentType, f.Body)
}
