package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/sanctuary/internal/model"
)

const (
	contextUserKey   = "user"
	contextUserIDKey = "user_id"
	contextTokenKey  = "token"
)

// TokenValidator 校验访问令牌
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*model.User, error)
}

// RequireAuth 要求有效的 Bearer 令牌，否则返回 401
func RequireAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "Missing or malformed Authorization header",
			})
			return
		}

		user, err := validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set(contextUserKey, user)
		c.Set(contextUserIDKey, user.ID)
		c.Set(contextTokenKey, token)
		c.Next()
	}
}

// BearerToken 从 Authorization 头中取出令牌
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetCurrentUser 从上下文获取当前用户
func GetCurrentUser(c *gin.Context) (*model.User, bool) {
	user, exists := c.Get(contextUserKey)
	if !exists {
		return nil, false
	}
	u, ok := user.(*model.User)
	return u, ok
}

// GetUserID 从上下文获取当前用户ID
func GetUserID(c *gin.Context) string {
	return c.GetString(contextUserIDKey)
}

// GetToken 从上下文获取当前请求使用的令牌
func GetToken(c *gin.Context) string {
	return c.GetString(contextTokenKey)
}
