package chatclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/sanctuary/internal/model"
	"github.com/ashwinyue/sanctuary/internal/service/event"
)

// stubServer 模拟服务端的会话和聊天接口
type stubServer struct {
	mu       sync.Mutex
	messages []model.Message
	chats    []ChatRequest
	// reply 处理第 n 次聊天请求（从 0 开始）
	reply func(c *gin.Context, n int)
}

func (s *stubServer) handler() http.Handler {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	ok := func(c *gin.Context, status int, data interface{}) {
		c.JSON(status, gin.H{"code": 0, "message": "success", "data": data})
	}

	r.POST("/api/v1/conversations", func(c *gin.Context) {
		ok(c, http.StatusCreated, model.Conversation{ID: "conv-1", Title: model.DefaultConversationTitle})
	})
	r.POST("/api/v1/conversations/:id/messages", func(c *gin.Context) {
		var body struct {
			Role        string `json:"role"`
			ContentText string `json:"content_text"`
			ImageData   string `json:"imageData"`
		}
		_ = c.ShouldBindJSON(&body)
		s.mu.Lock()
		msg := model.Message{
			ID:             "m" + string(rune('0'+len(s.messages))),
			ConversationID: c.Param("id"),
			Role:           body.Role,
			ContentText:    body.ContentText,
			ContentJSON:    model.NewContentJSON(body.ImageData),
		}
		s.messages = append(s.messages, msg)
		s.mu.Unlock()
		ok(c, http.StatusCreated, msg)
	})
	r.GET("/api/v1/conversations/:id", func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		ok(c, http.StatusOK, gin.H{"id": c.Param("id"), "title": "t", "messages": s.messages})
	})
	r.POST("/api/v1/chat", func(c *gin.Context) {
		var req ChatRequest
		_ = c.ShouldBindJSON(&req)
		s.mu.Lock()
		n := len(s.chats)
		s.chats = append(s.chats, req)
		s.mu.Unlock()
		s.reply(c, n)
	})
	return r
}

// persistAssistant 模拟服务端在 done 之前保存助手消息
func (s *stubServer) persistAssistant(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, model.Message{ID: "a" + text, Role: model.RoleAssistant, ContentText: text})
}

func (s *stubServer) requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatRequest(nil), s.chats...)
}

func writeSSE(c *gin.Context, chunks ...string) {
	c.Header("Content-Type", "text/event-stream")
	c.Status(http.StatusOK)
	for _, chunk := range chunks {
		_, _ = c.Writer.WriteString(chunk)
		c.Writer.Flush()
	}
}

func frame(t *testing.T, ev event.Event) string {
	t.Helper()
	raw, err := event.Encode(ev)
	require.NoError(t, err)
	return string(raw)
}

func newTestSession(t *testing.T, stub *stubServer) *Session {
	t.Helper()
	ts := httptest.NewServer(stub.handler())
	t.Cleanup(ts.Close)

	client := New(ts.URL, "token")
	client.HTTPClient = ts.Client()
	return NewSession(client, "")
}

func TestSession_SendReconciles(t *testing.T) {
	cost := 0.00007
	stub := &stubServer{}
	stub.reply = func(c *gin.Context, n int) {
		stub.persistAssistant("2+2 is 4")
		text := frame(t, event.Text{Content: "2+2"})
		writeSSE(c,
			text[:7], text[7:],
			": keep-alive\n\n",
			"data: {not json}\n\n",
			frame(t, event.Text{Content: " is 4"}),
			frame(t, event.Usage{InputTokens: 12, OutputTokens: 4, CostUSD: &cost}),
			frame(t, event.Done{}),
		)
	}
	s := newTestSession(t, stub)

	var deltas []string
	s.OnDelta = func(text string) { deltas = append(deltas, text) }

	require.NoError(t, s.Send(context.Background(), "What's 2+2?", ""))

	assert.Equal(t, []string{"2+2", " is 4"}, deltas)
	assert.Equal(t, "conv-1", s.ConversationID())
	assert.False(t, s.Generating())
	assert.Empty(t, s.Streaming())

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "2+2 is 4", msgs[1].ContentText)
	assert.False(t, msgs[1].Error)

	usage := s.LastUsage()
	require.NotNil(t, usage)
	assert.Equal(t, 12, usage.InputTokens)
	assert.InDelta(t, cost, *usage.CostUSD, 1e-12)

	reqs := stub.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "conv-1", reqs[0].ConversationID)
	assert.Equal(t, []Turn{{Role: model.RoleUser, Content: "What's 2+2?"}}, reqs[0].Messages)
}

func TestSession_ErrorThenRetry(t *testing.T) {
	stub := &stubServer{}
	stub.reply = func(c *gin.Context, n int) {
		if n == 0 {
			writeSSE(c, frame(t, event.Text{Content: "par"}), frame(t, event.Error{Message: "upstream reset"}))
			return
		}
		stub.persistAssistant("hello")
		writeSSE(c, frame(t, event.Text{Content: "hello"}), frame(t, event.Usage{}), frame(t, event.Done{}))
	}
	s := newTestSession(t, stub)

	require.NoError(t, s.Send(context.Background(), "hi", ""))
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].Error)
	assert.Equal(t, "upstream reset", msgs[1].ContentText)
	assert.False(t, s.Generating())

	require.NoError(t, s.Retry(context.Background()))
	msgs = s.Messages()
	require.Len(t, msgs, 2)
	assert.False(t, msgs[1].Error)
	assert.Equal(t, "hello", msgs[1].ContentText)

	// 重发时不包含错误条目，也不会重复保存用户消息
	reqs := stub.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0].Messages, reqs[1].Messages)
	assert.Len(t, reqs[1].Messages, 1)
}

func TestSession_HTTPErrorBecomesEntry(t *testing.T) {
	stub := &stubServer{}
	stub.reply = func(c *gin.Context, n int) {
		c.JSON(http.StatusConflict, gin.H{"code": 409, "message": "a reply is already streaming"})
	}
	s := newTestSession(t, stub)

	require.NoError(t, s.Send(context.Background(), "hi", ""))
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].Error)
	assert.Contains(t, msgs[1].ContentText, "a reply is already streaming")
}

func TestSession_TruncatedStream(t *testing.T) {
	stub := &stubServer{}
	stub.reply = func(c *gin.Context, n int) {
		writeSSE(c, frame(t, event.Text{Content: "half"}))
	}
	s := newTestSession(t, stub)

	require.NoError(t, s.Send(context.Background(), "hi", ""))
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].Error)
}

func TestSession_Cancel(t *testing.T) {
	stub := &stubServer{}
	stub.reply = func(c *gin.Context, n int) {
		writeSSE(c, frame(t, event.Text{Content: "once upon"}))
		<-c.Request.Context().Done()
	}
	s := newTestSession(t, stub)

	firstDelta := make(chan struct{})
	var once sync.Once
	s.OnDelta = func(string) { once.Do(func() { close(firstDelta) }) }

	done := make(chan error, 1)
	go func() { done <- s.Send(context.Background(), "tell me a story", "") }()

	select {
	case <-firstDelta:
	case <-time.After(3 * time.Second):
		t.Fatal("no delta received")
	}
	assert.True(t, s.Generating())

	s.Cancel()
	assert.False(t, s.Generating())
	assert.Empty(t, s.Streaming())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("send did not return after cancel")
	}

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
}

func TestSession_BusyAndNothingToRetry(t *testing.T) {
	s := NewSession(New("http://unused.test", ""), "")
	assert.ErrorIs(t, s.Retry(context.Background()), ErrNothingToRetry)

	s.generating = true
	assert.ErrorIs(t, s.Send(context.Background(), "hi", ""), ErrBusy)
	assert.ErrorIs(t, s.Retry(context.Background()), ErrBusy)
}

func TestSession_ImageTurn(t *testing.T) {
	stub := &stubServer{}
	stub.reply = func(c *gin.Context, n int) {
		stub.persistAssistant("a cat")
		writeSSE(c, frame(t, event.Text{Content: "a cat"}), frame(t, event.Done{}))
	}
	s := newTestSession(t, stub)

	img := "data:image/png;base64,AAAA"
	require.NoError(t, s.Send(context.Background(), "what is this?", img))

	reqs := stub.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, img, reqs[0].ImageData)
	assert.Equal(t, img, reqs[0].Messages[0].ImageData)
}

func TestClient_DoDecodesEnvelope(t *testing.T) {
	stub := &stubServer{}
	s := newTestSession(t, stub)

	conv, err := s.client.CreateConversation(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", conv.ID)

	_, err = s.client.GetConversation(context.Background(), "conv-1")
	require.NoError(t, err)

	assert.Equal(t, "http 404: not found", (&HTTPError{StatusCode: 404, Body: "not found"}).Error())
}
