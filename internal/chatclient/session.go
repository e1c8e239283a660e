package chatclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ashwinyue/sanctuary/internal/model"
	"github.com/ashwinyue/sanctuary/internal/service/event"
)

var (
	// ErrBusy 已有回复在生成
	ErrBusy = errors.New("a reply is already being generated")
	// ErrNothingToRetry 没有可以重发的用户消息
	ErrNothingToRetry = errors.New("no user message to retry")
)

// readBufferSize 每次从响应体读取的字节数
const readBufferSize = 4096

// Entry 会话视图中的一条消息
//
// Error 为 true 的条目只存在于本地，不会落库，也不会发送给模型。
type Entry struct {
	model.Message
	Error bool
}

// Session 单个会话的客户端视图
type Session struct {
	client *Client

	// Model 为空时使用服务端默认模型
	Model string
	// OnDelta 每收到一段文本时调用
	OnDelta func(text string)

	mu             sync.Mutex
	conversationID string
	messages       []Entry
	streaming      strings.Builder
	generating     bool
	usage          *event.Usage
	cancel         context.CancelFunc
	turn           uint64
}

// NewSession 创建会话视图，conversationID 为空时首次发送会新建会话
func NewSession(client *Client, conversationID string) *Session {
	return &Session{client: client, conversationID: conversationID}
}

// ConversationID 当前会话 ID
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Messages 返回消息快照
func (s *Session) Messages() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.messages...)
}

// Streaming 返回正在生成的文本
func (s *Session) Streaming() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming.String()
}

// Generating 是否正在生成
func (s *Session) Generating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating
}

// LastUsage 最近一次完成回复的用量
func (s *Session) LastUsage() *event.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Load 从服务端重新加载消息
func (s *Session) Load(ctx context.Context) error {
	id := s.ConversationID()
	if id == "" {
		return nil
	}
	detail, err := s.client.GetConversation(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.messages = toEntries(detail.Messages)
	s.mu.Unlock()
	return nil
}

// Send 保存用户消息并流式获取回复，阻塞到回复结束
//
// 回复中的错误以本地错误条目体现，返回的 error 只表示消息没有发出。
func (s *Session) Send(ctx context.Context, text, imageData string) error {
	if s.Generating() {
		return ErrBusy
	}

	convID := s.ConversationID()
	if convID == "" {
		conv, err := s.client.CreateConversation(ctx, "")
		if err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		convID = conv.ID
		s.mu.Lock()
		s.conversationID = convID
		s.mu.Unlock()
	}

	msg, err := s.client.AddMessage(ctx, convID, model.RoleUser, text, imageData)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	s.mu.Lock()
	s.messages = append(s.messages, Entry{Message: *msg})
	req := s.requestLocked(imageData)
	s.mu.Unlock()

	return s.stream(ctx, req)
}

// Retry 去掉末尾的错误条目，重新发送最后一条用户消息
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.generating {
		s.mu.Unlock()
		return ErrBusy
	}
	if n := len(s.messages); n > 0 && s.messages[n-1].Error {
		s.messages = s.messages[:n-1]
	}

	var last *Entry
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == model.RoleUser {
			last = &s.messages[i]
			break
		}
	}
	if last == nil || s.conversationID == "" {
		s.mu.Unlock()
		return ErrNothingToRetry
	}
	req := s.requestLocked(last.ImageData())
	s.mu.Unlock()

	return s.stream(ctx, req)
}

// Cancel 中止正在进行的回复，未完成的文本被丢弃
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.generating {
		return
	}
	s.cancel()
	s.turn++
	s.generating = false
	s.streaming.Reset()
}

// requestLocked 用当前消息构造请求，调用方持有锁
func (s *Session) requestLocked(imageData string) *ChatRequest {
	turns := make([]Turn, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Error {
			continue
		}
		turns = append(turns, Turn{Role: m.Role, Content: m.ContentText, ImageData: m.ImageData()})
	}
	return &ChatRequest{
		ConversationID: s.conversationID,
		Messages:       turns,
		Model:          s.Model,
		ImageData:      imageData,
	}
}

// stream 执行一轮流式请求
func (s *Session) stream(ctx context.Context, req *ChatRequest) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.generating {
		s.mu.Unlock()
		return ErrBusy
	}
	s.turn++
	turn := s.turn
	s.generating = true
	s.cancel = cancel
	s.usage = nil
	s.streaming.Reset()
	s.mu.Unlock()

	defer s.finish(turn)

	body, err := s.client.OpenStream(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			s.appendError(turn, errorText(err))
		}
		return nil
	}
	defer body.Close()

	var (
		dec      event.Decoder
		buf      = make([]byte, readBufferSize)
		terminal bool
	)
	for !terminal {
		n, readErr := body.Read(buf)
		for _, ev := range dec.Feed(buf[:n]) {
			if s.dispatch(ctx, turn, ev) {
				terminal = true
				break
			}
		}
		if terminal {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(readErr, io.EOF) {
				s.appendError(turn, "stream ended before the reply finished")
			} else {
				s.appendError(turn, readErr.Error())
			}
			return nil
		}
	}
	return nil
}

// dispatch 处理单个事件，返回是否为结束事件
func (s *Session) dispatch(ctx context.Context, turn uint64, ev event.Event) bool {
	switch e := ev.(type) {
	case event.Text:
		if !s.current(turn, func() { s.streaming.WriteString(e.Content) }) {
			return true
		}
		if s.OnDelta != nil {
			s.OnDelta(e.Content)
		}
		return false
	case event.Usage:
		usage := e
		s.current(turn, func() { s.usage = &usage })
		return false
	case event.Done:
		s.reconcile(ctx, turn)
		return true
	case event.Error:
		s.appendError(turn, e.Message)
		return true
	default:
		return false
	}
}

// reconcile 回复完成后用服务端保存的消息替换本地列表
func (s *Session) reconcile(ctx context.Context, turn uint64) {
	s.mu.Lock()
	convID := s.conversationID
	s.mu.Unlock()

	detail, err := s.client.GetConversation(ctx, convID)
	s.current(turn, func() {
		if err != nil {
			// 刷新失败时保留已收到的文本
			s.messages = append(s.messages, Entry{Message: model.Message{
				ConversationID: convID,
				Role:           model.RoleAssistant,
				ContentText:    s.streaming.String(),
			}})
			return
		}
		s.messages = toEntries(detail.Messages)
	})
}

func (s *Session) appendError(turn uint64, text string) {
	s.current(turn, func() {
		s.messages = append(s.messages, Entry{
			Message: model.Message{
				ConversationID: s.conversationID,
				Role:           model.RoleAssistant,
				ContentText:    text,
			},
			Error: true,
		})
	})
}

// current 在 turn 仍然有效时执行 fn，被取消的轮次不再修改状态
func (s *Session) current(turn uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turn != turn {
		return false
	}
	fn()
	return true
}

func (s *Session) finish(turn uint64) {
	s.current(turn, func() {
		s.generating = false
		s.streaming.Reset()
		s.cancel = nil
	})
}

func toEntries(messages []model.Message) []Entry {
	out := make([]Entry, len(messages))
	for i, m := range messages {
		out[i] = Entry{Message: m}
	}
	return out
}

func errorText(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Body
	}
	return err.Error()
}
