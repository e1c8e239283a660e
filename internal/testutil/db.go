// Package testutil 提供测试辅助工具
package testutil

import (
	"testing"

	"gorm.io/driver/sqlite"

	"github.com/ashwinyue/sanctuary/internal/database"
)

// NewDB 创建内存 SQLite 数据库并完成迁移
func NewDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(sqlite.Open(":memory:"), false)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// :memory: 数据库只存在于单个连接中
	sqlDB, err := db.DB.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
