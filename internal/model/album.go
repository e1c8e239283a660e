package model

import "time"

// AlbumItem 相册图片
type AlbumItem struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserID      string    `gorm:"index;size:36;not null" json:"user_id"`
	ImagePath   string    `gorm:"size:500;not null" json:"-"`
	ContentType string    `gorm:"size:100" json:"content_type"`
	Size        int64     `json:"size"`
	Comment     string    `gorm:"type:text" json:"comment"`
	MemoryNote  string    `gorm:"type:text" json:"memory_note"`
	ImageURL    string    `gorm:"-" json:"image_url"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (AlbumItem) TableName() string {
	return "album_items"
}
