package repository

import (
	"context"

	"github.com/ashwinyue/sanctuary/internal/model"
	"gorm.io/gorm"
)

// AlbumRepository 相册数据访问
type AlbumRepository struct {
	db *gorm.DB
}

// NewAlbumRepository 创建相册仓库
func NewAlbumRepository(db *gorm.DB) *AlbumRepository {
	return &AlbumRepository{db: db}
}

// Create 创建相册条目
func (r *AlbumRepository) Create(ctx context.Context, item *model.AlbumItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// Get 获取相册条目
func (r *AlbumRepository) Get(ctx context.Context, ownerID, id string) (*model.AlbumItem, error) {
	var item model.AlbumItem
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, ownerID).First(&item).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// List 列出相册，最新的在前
func (r *AlbumRepository) List(ctx context.Context, ownerID string) ([]*model.AlbumItem, error) {
	var items []*model.AlbumItem
	err := r.db.WithContext(ctx).Where("user_id = ?", ownerID).Order("created_at DESC").Find(&items).Error
	return items, err
}

// Update 更新说明与记忆备注
func (r *AlbumRepository) Update(ctx context.Context, ownerID, id string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.AlbumItem{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete 删除相册条目
func (r *AlbumRepository) Delete(ctx context.Context, ownerID, id string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, ownerID).Delete(&model.AlbumItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
