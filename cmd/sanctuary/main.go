package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/ashwinyue/sanctuary/internal/config"
	"github.com/ashwinyue/sanctuary/internal/database"
	"github.com/ashwinyue/sanctuary/internal/handler"
	"github.com/ashwinyue/sanctuary/internal/middleware"
	"github.com/ashwinyue/sanctuary/internal/repository"
	"github.com/ashwinyue/sanctuary/internal/router"
	"github.com/ashwinyue/sanctuary/internal/service"
	"github.com/ashwinyue/sanctuary/internal/service/callback"
	"github.com/ashwinyue/sanctuary/internal/service/file"
)

// tokenCleanupInterval 清理过期令牌的间隔
const tokenCleanupInterval = time.Hour

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		if _, err := os.Stat("./configs/config.yaml"); err == nil {
			configPath = "./configs/config.yaml"
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 设置 Gin 模式
	gin.SetMode(cfg.Server.Mode)

	if len(cfg.Auth.AllowedEmails) == 0 {
		log.Printf("Warning: auth.allowedEmails is empty, any email may register")
	}

	// 初始化数据库
	db, err := database.New(cfg)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	log.Printf("Database connected: %s", cfg.Database.DBName)

	// 初始化 Redis（可选）
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: redis ping failed: %v", err)
		}
		cancel()
	}

	// 初始化相册存储
	storage, err := file.NewStorage(context.Background(), &cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}

	// 初始化模型
	callback.SetupGlobalCallbacks(cfg.App.Debug)
	chatModel, err := service.NewChatModel(context.Background(), &cfg.AI)
	if err != nil {
		log.Fatalf("Failed to create chat model: %v", err)
	}

	// 初始化各层
	repos := repository.NewRepositories(db.DB)
	services := service.NewServices(repos, cfg, redisClient, chatModel, storage)
	handlers := handler.NewHandlers(services)

	var chatLimiter *middleware.FixedWindowLimiter
	if cfg.RateLimit.Enabled && redisClient != nil {
		chatLimiter, err = middleware.NewFixedWindowLimiter(redisClient, "sanctuary:ratelimit", cfg.RateLimit.ChatPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("Failed to create rate limiter: %v", err)
		}
	}

	// 初始化路由
	r := router.SetupRouter(handlers, services, chatLimiter)

	// 创建 HTTP 服务器，WriteTimeout 为 0 时不限制流式响应时长
	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go cleanupTokens(ctx, services)

	// 启动服务器
	go func() {
		log.Printf("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// 等待中断信号
	<-ctx.Done()

	log.Println("Shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	services.Relay.Wait()

	log.Println("Server exited")
}

// cleanupTokens 定期删除过期和已撤销的令牌
func cleanupTokens(ctx context.Context, services *service.Services) {
	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := services.Auth.CleanupTokens(ctx); err != nil {
				log.Printf("[Auth] token cleanup failed: %v", err)
			}
		}
	}
}
