package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggingMiddleware 日志中间件，skipPaths 中的路径不记录
func LoggingMiddleware(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if _, ok := skip[path]; ok {
			return
		}

		user := GetUserID(c)
		if user == "" {
			user = "-"
		}
		log.Printf("[HTTP] %s %s | Status: %d | Latency: %v | User: %s",
			c.Request.Method,
			path,
			c.Writer.Status(),
			time.Since(start),
			user,
		)
		for _, e := range c.Errors {
			log.Printf("[HTTP] %s %s error: %v", c.Request.Method, path, e.Err)
		}
	}
}
