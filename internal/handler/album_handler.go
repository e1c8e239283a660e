package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/sanctuary/internal/middleware"
	"github.com/ashwinyue/sanctuary/internal/service"
	"github.com/ashwinyue/sanctuary/internal/service/album"
)

// AlbumHandler 相册处理器
type AlbumHandler struct {
	svc *service.Services
}

// NewAlbumHandler 创建相册处理器
func NewAlbumHandler(svc *service.Services) *AlbumHandler {
	return &AlbumHandler{svc: svc}
}

// List 列出相册
func (h *AlbumHandler) List(c *gin.Context) {
	items, err := h.svc.Album.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// Create 上传图片（data URL）
func (h *AlbumHandler) Create(c *gin.Context) {
	var req album.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	item, err := h.svc.Album.Create(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, item)
}

// Update 更新说明和记忆备注
func (h *AlbumHandler) Update(c *gin.Context) {
	var req album.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	item, err := h.svc.Album.Update(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), &req)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, item)
}

// Delete 删除图片
func (h *AlbumHandler) Delete(c *gin.Context) {
	if err := h.svc.Album.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		Error(c, err)
		return
	}
	NoContent(c)
}

// Image 输出图片内容
func (h *AlbumHandler) Image(c *gin.Context) {
	item, rc, err := h.svc.Album.Open(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, item.Size, item.ContentType, rc, map[string]string{
		"Cache-Control": "private, max-age=" + strconv.Itoa(24*3600),
	})
}
