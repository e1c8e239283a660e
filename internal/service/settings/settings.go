// Package settings 管理用户设置和记忆笔记
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashwinyue/sanctuary/internal/model"
	"github.com/ashwinyue/sanctuary/internal/repository"
	"github.com/ashwinyue/sanctuary/internal/service/catalog"
)

var (
	// ErrMemoryTooLarge 记忆超过 8 KiB
	ErrMemoryTooLarge = errors.New("memory exceeds 8 KiB limit")
	// ErrUnknownModel 默认模型不在目录中
	ErrUnknownModel = errors.New("unknown model")
)

// Service 设置服务
type Service struct {
	repo repository.SettingsStore
}

// NewService 创建设置服务
func NewService(repo repository.SettingsStore) *Service {
	return &Service{repo: repo}
}

// UpdateRequest 部分更新，nil 字段保持不变
type UpdateRequest struct {
	DefaultModel           *string `json:"default_model"`
	CustomInstructions     *string `json:"custom_instructions"`
	StreamingEnabled       *bool   `json:"streaming_enabled"`
	TimestampsEnabled      *bool   `json:"timestamps_enabled"`
	SoundEnabled           *bool   `json:"sound_enabled"`
	MemoryInjectionEnabled *bool   `json:"memory_injection_enabled"`
}

// Get 获取设置，首次访问时创建默认值
func (s *Service) Get(ctx context.Context, ownerID string) (*model.Settings, error) {
	settings, err := s.repo.GetSettings(ctx, ownerID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	settings = model.DefaultSettings(ownerID, catalog.DefaultModelID)
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to create settings: %w", err)
	}
	return settings, nil
}

// Update 更新设置
func (s *Service) Update(ctx context.Context, ownerID string, req *UpdateRequest) (*model.Settings, error) {
	settings, err := s.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if req.DefaultModel != nil {
		if !catalog.IsKnown(*req.DefaultModel) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownModel, *req.DefaultModel)
		}
		settings.DefaultModel = *req.DefaultModel
	}
	if req.CustomInstructions != nil {
		settings.CustomInstructions = *req.CustomInstructions
	}
	if req.StreamingEnabled != nil {
		settings.StreamingEnabled = *req.StreamingEnabled
	}
	if req.TimestampsEnabled != nil {
		settings.TimestampsEnabled = *req.TimestampsEnabled
	}
	if req.SoundEnabled != nil {
		settings.SoundEnabled = *req.SoundEnabled
	}
	if req.MemoryInjectionEnabled != nil {
		settings.MemoryInjectionEnabled = *req.MemoryInjectionEnabled
	}

	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to save settings: %w", err)
	}
	return settings, nil
}

// GetMemory 获取记忆笔记，不存在时返回空笔记
func (s *Service) GetMemory(ctx context.Context, ownerID string) (*model.MemoryNote, error) {
	note, err := s.repo.GetMemory(ctx, ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return &model.MemoryNote{UserID: ownerID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return note, nil
}

// SaveMemory 覆盖记忆笔记
func (s *Service) SaveMemory(ctx context.Context, ownerID, markdown string) (*model.MemoryNote, error) {
	if len(markdown) > model.MaxMemoryBytes {
		return nil, ErrMemoryTooLarge
	}

	note := &model.MemoryNote{UserID: ownerID, Markdown: markdown}
	if err := s.repo.SaveMemory(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to save memory: %w", err)
	}
	return note, nil
}

// PromptContext 组装提示词需要的设置与记忆
type PromptContext struct {
	DefaultModel       string
	CustomInstructions string
	MemoryMarkdown     string
	MemoryEnabled      bool
}

// LoadPromptContext 读取设置和记忆
func (s *Service) LoadPromptContext(ctx context.Context, ownerID string) (*PromptContext, error) {
	settings, err := s.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	note, err := s.GetMemory(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &PromptContext{
		DefaultModel:       settings.DefaultModel,
		CustomInstructions: strings.TrimSpace(settings.CustomInstructions),
		MemoryMarkdown:     note.Markdown,
		MemoryEnabled:      settings.MemoryInjectionEnabled,
	}, nil
}
