// Package service 组装各业务服务
package service

import (
	"log"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/redis/go-redis/v9"

	"github.com/ashwinyue/sanctuary/internal/config"
	"github.com/ashwinyue/sanctuary/internal/repository"
	"github.com/ashwinyue/sanctuary/internal/service/album"
	"github.com/ashwinyue/sanctuary/internal/service/auth"
	"github.com/ashwinyue/sanctuary/internal/service/chat"
	"github.com/ashwinyue/sanctuary/internal/service/export"
	"github.com/ashwinyue/sanctuary/internal/service/file"
	"github.com/ashwinyue/sanctuary/internal/service/relay"
	"github.com/ashwinyue/sanctuary/internal/service/session"
	"github.com/ashwinyue/sanctuary/internal/service/settings"
	"github.com/ashwinyue/sanctuary/internal/service/usage"
)

// Services 服务集合
type Services struct {
	Auth     *auth.Service
	Chat     *chat.Service
	Settings *settings.Service
	Album    *album.Service
	Usage    *usage.Service
	Export   *export.Service
	Relay    *relay.Relay

	// 配置
	Config     *config.Config
	SessionMgr *session.Manager
}

// NewServices 创建所有服务，redisClient 可为空
func NewServices(repo *repository.Repositories, cfg *config.Config, redisClient *redis.Client, chatModel einomodel.BaseChatModel, storage file.Storage) *Services {
	// 创建 Session 管理器
	sessionMgr := session.NewManager(redisClient)
	if redisClient == nil {
		log.Printf("[Services] redis disabled, stream registry is process-local")
	}

	return &Services{
		Auth:       auth.NewService(repo.Auth, &cfg.Auth),
		Chat:       chat.NewService(repo.Chat),
		Settings:   settings.NewService(repo.Settings),
		Album:      album.NewService(repo.Album, storage, cfg.Storage.Local.BaseURL),
		Usage:      usage.NewService(repo.Chat),
		Export:     export.NewService(repo.Chat, repo.Settings),
		Relay:      relay.New(chatModel, repo.Chat, sessionMgr, cfg.App.Debug),
		Config:     cfg,
		SessionMgr: sessionMgr,
	}
}
