package repository

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound 记录不存在或不属于当前用户
var ErrNotFound = errors.New("record not found")

// Repositories 仓库集合，用于统一管理所有仓库
type Repositories struct {
	DB       *gorm.DB // 直接访问数据库
	Chat     *ChatRepository
	Settings *SettingsRepository
	Album    *AlbumRepository
	Auth     *AuthRepository
}

// NewRepositories 创建所有仓库
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DB:       db,
		Chat:     NewChatRepository(db),
		Settings: NewSettingsRepository(db),
		Album:    NewAlbumRepository(db),
		Auth:     NewAuthRepository(db),
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
