package repository

import (
	"context"

	"github.com/ashwinyue/sanctuary/internal/model"
	"gorm.io/gorm"
)

// SettingsRepository 用户设置与记忆笔记数据访问
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository 创建设置仓库
func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetSettings 获取用户设置
func (r *SettingsRepository) GetSettings(ctx context.Context, ownerID string) (*model.Settings, error) {
	var settings model.Settings
	err := r.db.WithContext(ctx).Where("user_id = ?", ownerID).First(&settings).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &settings, nil
}

// SaveSettings 保存用户设置，不存在时创建
func (r *SettingsRepository) SaveSettings(ctx context.Context, settings *model.Settings) error {
	return r.db.WithContext(ctx).Save(settings).Error
}

// GetMemory 获取记忆笔记
func (r *SettingsRepository) GetMemory(ctx context.Context, ownerID string) (*model.MemoryNote, error) {
	var note model.MemoryNote
	err := r.db.WithContext(ctx).Where("user_id = ?", ownerID).First(&note).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &note, nil
}

// SaveMemory 保存记忆笔记，不存在时创建
func (r *SettingsRepository) SaveMemory(ctx context.Context, note *model.MemoryNote) error {
	return r.db.WithContext(ctx).Save(note).Error
}
