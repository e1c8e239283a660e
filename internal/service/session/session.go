// Package session 跟踪进行中的聊天流
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// 流标记在 Redis 中的过期时间，防止进程崩溃后残留
	streamTTL = 10 * time.Minute
	// Redis key 前缀
	streamKeyPrefix = "sanctuary:stream:"
)

// ErrStreamInFlight 同一会话已有进行中的流
var ErrStreamInFlight = errors.New("a response is already streaming for this conversation")

// Manager 活跃流管理器
//
// 同一会话同时只允许一个流。配置 Redis 时，标记同时写入 Redis，
// 多个进程之间也互斥。
type Manager struct {
	mu            sync.RWMutex
	activeStreams map[string]*ActiveStream
	redis         *redis.Client
}

// ActiveStream 活跃流
type ActiveStream struct {
	OwnerID        string
	ConversationID string
	CancelFunc     context.CancelFunc
	CreatedAt      time.Time

	mu        sync.Mutex
	content   strings.Builder
	chunks    int
	updatedAt time.Time
	done      bool
}

// NewManager 创建流管理器，redisClient 可为空
func NewManager(redisClient *redis.Client) *Manager {
	return &Manager{
		activeStreams: make(map[string]*ActiveStream),
		redis:         redisClient,
	}
}

func streamKey(ownerID, conversationID string) string {
	return ownerID + ":" + conversationID
}

// RegisterStream 注册活跃流，已存在时返回 ErrStreamInFlight
func (m *Manager) RegisterStream(ctx context.Context, ownerID, conversationID string, cancelFunc context.CancelFunc) (*ActiveStream, error) {
	key := streamKey(ownerID, conversationID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.activeStreams[key]; ok {
		return nil, ErrStreamInFlight
	}

	if m.redis != nil {
		ok, err := m.redis.SetNX(ctx, streamKeyPrefix+key, time.Now().UTC().Format(time.RFC3339), streamTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to mark stream: %w", err)
		}
		if !ok {
			return nil, ErrStreamInFlight
		}
	}

	now := time.Now()
	stream := &ActiveStream{
		OwnerID:        ownerID,
		ConversationID: conversationID,
		CancelFunc:     cancelFunc,
		CreatedAt:      now,
		updatedAt:      now,
	}
	m.activeStreams[key] = stream
	return stream, nil
}

// UnregisterStream 注销流
func (m *Manager) UnregisterStream(ownerID, conversationID string) {
	key := streamKey(ownerID, conversationID)

	m.mu.Lock()
	stream, ok := m.activeStreams[key]
	if ok {
		delete(m.activeStreams, key)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	stream.MarkDone()

	if m.redis != nil {
		// 请求的 ctx 此时可能已取消
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.redis.Del(ctx, streamKeyPrefix+key).Err(); err != nil {
			log.Printf("[Session] failed to clear stream marker %s: %v", key, err)
		}
	}
}

// GetStream 获取活跃流
func (m *Manager) GetStream(ownerID, conversationID string) *ActiveStream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeStreams[streamKey(ownerID, conversationID)]
}

// StopStream 取消流并返回取消时的进度，不存在时返回 false
//
// 只取消 ctx，注销由流的持有者完成。
func (m *Manager) StopStream(ownerID, conversationID string) (Progress, bool) {
	stream := m.GetStream(ownerID, conversationID)
	if stream == nil {
		return Progress{}, false
	}

	progress := stream.Progress()
	if stream.CancelFunc != nil {
		stream.CancelFunc()
	}
	return progress, true
}

// ActiveCount 活跃流数量
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeStreams)
}

// AppendChunk 追加流内容
func (s *ActiveStream) AppendChunk(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.content.WriteString(chunk)
	s.chunks++
	s.updatedAt = time.Now()
}

// Progress 流的进度快照
type Progress struct {
	Chunks    int       `json:"chunks"`
	Partial   string    `json:"partial"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Done      bool      `json:"done"`
}

// Progress 返回当前进度
func (s *ActiveStream) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Progress{
		Chunks:    s.chunks,
		Partial:   s.content.String(),
		StartedAt: s.CreatedAt,
		UpdatedAt: s.updatedAt,
		Done:      s.done,
	}
}

// MarkDone 标记流结束
func (s *ActiveStream) MarkDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.updatedAt = time.Now()
}
