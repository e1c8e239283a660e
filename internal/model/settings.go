package model

import "time"

// MaxMemoryBytes 记忆笔记的最大字节数
const MaxMemoryBytes = 8192

// Settings 用户设置，每个用户一行
type Settings struct {
	UserID                 string    `gorm:"primaryKey;size:36" json:"user_id"`
	DefaultModel           string    `gorm:"size:100" json:"default_model"`
	CustomInstructions     string    `gorm:"type:text" json:"custom_instructions"`
	StreamingEnabled       bool      `json:"streaming_enabled"`
	TimestampsEnabled      bool      `json:"timestamps_enabled"`
	SoundEnabled           bool      `json:"sound_enabled"`
	MemoryInjectionEnabled bool      `json:"memory_injection_enabled"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// MemoryNote 用户记忆笔记
type MemoryNote struct {
	UserID    string    `gorm:"primaryKey;size:36" json:"user_id"`
	Markdown  string    `gorm:"type:text" json:"markdown"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Settings) TableName() string {
	return "settings"
}

func (MemoryNote) TableName() string {
	return "memory_notes"
}

// DefaultSettings 新用户的默认设置
func DefaultSettings(userID, defaultModel string) *Settings {
	return &Settings{
		UserID:                 userID,
		DefaultModel:           defaultModel,
		StreamingEnabled:       true,
		TimestampsEnabled:      true,
		SoundEnabled:           false,
		MemoryInjectionEnabled: true,
	}
}
