// Package album 管理相册图片及其备注
package album

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/ashwinyue/sanctuary/internal/model"
	"github.com/ashwinyue/sanctuary/internal/repository"
	"github.com/ashwinyue/sanctuary/internal/service/file"
)

// MaxImageDataBytes data URL 的最大长度
const MaxImageDataBytes = 4 << 20

var (
	// ErrInvalidImage 不是合法的 data:image URL
	ErrInvalidImage = errors.New("imageData must be a base64 data:image/ URL")
	// ErrImageTooLarge 图片超过 4 MiB
	ErrImageTooLarge = errors.New("image exceeds 4 MiB limit")
)

// Service 相册服务
type Service struct {
	repo      repository.AlbumStore
	storage   file.Storage
	urlPrefix string
}

// NewService 创建相册服务
func NewService(repo repository.AlbumStore, storage file.Storage, urlPrefix string) *Service {
	return &Service{
		repo:      repo,
		storage:   storage,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
	}
}

// CreateRequest 上传请求
type CreateRequest struct {
	ImageData  string `json:"imageData" binding:"required"`
	Comment    string `json:"comment"`
	MemoryNote string `json:"memory_note"`
}

// UpdateRequest 更新请求
type UpdateRequest struct {
	Comment    *string `json:"comment"`
	MemoryNote *string `json:"memory_note"`
}

// DecodeDataURL 解析 data:image/...;base64, 格式
func DecodeDataURL(dataURL string) (contentType string, data []byte, err error) {
	if len(dataURL) > MaxImageDataBytes {
		return "", nil, ErrImageTooLarge
	}
	if !strings.HasPrefix(dataURL, "data:image/") {
		return "", nil, ErrInvalidImage
	}

	header, payload, ok := strings.Cut(dataURL[len("data:"):], ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return "", nil, ErrInvalidImage
	}
	contentType = strings.TrimSuffix(header, ";base64")

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return contentType, data, nil
}

// Create 保存图片并创建条目
func (s *Service) Create(ctx context.Context, ownerID string, req *CreateRequest) (*model.AlbumItem, error) {
	contentType, data, err := DecodeDataURL(req.ImageData)
	if err != nil {
		return nil, err
	}

	path, err := s.storage.Save(ctx, &file.SaveRequest{
		OwnerID:     ownerID,
		ContentType: contentType,
		Size:        int64(len(data)),
		Reader:      bytes.NewReader(data),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	item := &model.AlbumItem{
		ID:          uuid.New().String(),
		UserID:      ownerID,
		ImagePath:   path,
		ContentType: contentType,
		Size:        int64(len(data)),
		Comment:     req.Comment,
		MemoryNote:  req.MemoryNote,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		// 数据库保存失败时删除已保存的文件
		_ = s.storage.Delete(ctx, path)
		return nil, fmt.Errorf("failed to save album item: %w", err)
	}

	s.withURL(item)
	return item, nil
}

// List 列出相册
func (s *Service) List(ctx context.Context, ownerID string) ([]*model.AlbumItem, error) {
	items, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list album: %w", err)
	}
	for _, item := range items {
		s.withURL(item)
	}
	return items, nil
}

// Update 更新说明和记忆备注
func (s *Service) Update(ctx context.Context, ownerID, id string, req *UpdateRequest) (*model.AlbumItem, error) {
	updates := map[string]interface{}{}
	if req.Comment != nil {
		updates["comment"] = *req.Comment
	}
	if req.MemoryNote != nil {
		updates["memory_note"] = *req.MemoryNote
	}
	if len(updates) > 0 {
		if err := s.repo.Update(ctx, ownerID, id, updates); err != nil {
			return nil, fmt.Errorf("failed to update album item: %w", err)
		}
	}

	item, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get album item: %w", err)
	}
	s.withURL(item)
	return item, nil
}

// Delete 删除条目和图片，图片删除失败只记录日志
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	item, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("failed to get album item: %w", err)
	}
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("failed to delete album item: %w", err)
	}
	if err := s.storage.Delete(ctx, item.ImagePath); err != nil {
		log.Printf("[Album] failed to delete image %s: %v", item.ImagePath, err)
	}
	return nil
}

// Open 打开图片内容
func (s *Service) Open(ctx context.Context, ownerID, id string) (*model.AlbumItem, io.ReadCloser, error) {
	item, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get album item: %w", err)
	}
	rc, err := s.storage.Get(ctx, item.ImagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open image: %w", err)
	}
	return item, rc, nil
}

func (s *Service) withURL(item *model.AlbumItem) {
	item.ImageURL = fmt.Sprintf("%s/%s/image", s.urlPrefix, item.ID)
}
