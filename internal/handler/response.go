package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/sanctuary/internal/repository"
	"github.com/ashwinyue/sanctuary/internal/service/album"
	"github.com/ashwinyue/sanctuary/internal/service/auth"
	"github.com/ashwinyue/sanctuary/internal/service/chat"
	"github.com/ashwinyue/sanctuary/internal/service/export"
	"github.com/ashwinyue/sanctuary/internal/service/relay"
	"github.com/ashwinyue/sanctuary/internal/service/session"
	"github.com/ashwinyue/sanctuary/internal/service/settings"
	"github.com/ashwinyue/sanctuary/internal/service/usage"
)

// Response 统一响应
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应 (200)
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

// Created 创建成功响应 (201)
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: "created", Data: data})
}

// NoContent 无内容响应 (204)
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Response{Code: status, Message: msg})
}

// BadRequest 400 错误响应
func BadRequest(c *gin.Context, msg string) {
	fail(c, http.StatusBadRequest, msg)
}

// Unauthorized 401 错误响应
func Unauthorized(c *gin.Context, msg string) {
	fail(c, http.StatusUnauthorized, msg)
}

// Forbidden 403 错误响应
func Forbidden(c *gin.Context, msg string) {
	fail(c, http.StatusForbidden, msg)
}

// NotFound 404 错误响应
func NotFound(c *gin.Context, msg string) {
	fail(c, http.StatusNotFound, msg)
}

// Conflict 409 错误响应
func Conflict(c *gin.Context, msg string) {
	fail(c, http.StatusConflict, msg)
}

// InternalServerError 500 错误响应
func InternalServerError(c *gin.Context, msg string) {
	fail(c, http.StatusInternalServerError, msg)
}

// Error 根据错误类型返回相应的错误响应
func Error(c *gin.Context, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		NotFound(c, "not found")
	case errors.Is(err, session.ErrStreamInFlight):
		Conflict(c, err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		Conflict(c, err.Error())
	case errors.Is(err, auth.ErrNotAllowed), errors.Is(err, auth.ErrAccountDisabled):
		Forbidden(c, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		Unauthorized(c, err.Error())
	case errors.Is(err, relay.ErrUnknownModel),
		errors.Is(err, relay.ErrEmptyMessages),
		errors.Is(err, settings.ErrUnknownModel),
		errors.Is(err, settings.ErrMemoryTooLarge),
		errors.Is(err, album.ErrInvalidImage),
		errors.Is(err, album.ErrImageTooLarge),
		errors.Is(err, chat.ErrInvalidRole),
		errors.Is(err, chat.ErrNotEditable),
		errors.Is(err, usage.ErrInvalidPeriod),
		errors.Is(err, auth.ErrInvalidTimezone),
		errors.Is(err, export.ErrInvalidFormat),
		errors.Is(err, export.ErrConversationRequired):
		BadRequest(c, err.Error())
	default:
		_ = c.Error(err)
		log.Printf("[Handler] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		InternalServerError(c, "internal server error")
	}
}
