// Package relay 把一轮对话转发给模型并把输出转换为事件流
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/ashwinyue/sanctuary/internal/model"
	"github.com/ashwinyue/sanctuary/internal/service/catalog"
	"github.com/ashwinyue/sanctuary/internal/service/event"
	"github.com/ashwinyue/sanctuary/internal/service/projector"
	"github.com/ashwinyue/sanctuary/internal/service/prompt"
	"github.com/ashwinyue/sanctuary/internal/service/session"
)

var (
	// ErrUnknownModel 模型不在目录中
	ErrUnknownModel = errors.New("unknown model")
	// ErrEmptyMessages 没有可发送的消息
	ErrEmptyMessages = errors.New("no user or assistant messages to send")
)

// touchTimeout 后台刷新会话时间的超时
const touchTimeout = 5 * time.Second

// MessageStore 助手消息的持久化
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *model.Message) error
	TouchConversation(ctx context.Context, ownerID, id string) error
}

// Request 一轮聊天请求
type Request struct {
	OwnerID            string
	ConversationID     string // 为空时不落库
	Messages           []projector.Turn
	ModelID            string
	CustomInstructions string
	MemoryMarkdown     string
	MemoryEnabled      bool
	ImageData          string // 附加到最后一条用户消息
}

// Relay 流式转发服务
type Relay struct {
	chatModel einomodel.BaseChatModel
	store     MessageStore
	streams   *session.Manager
	debug     bool

	// 后台任务
	wg sync.WaitGroup
}

// New 创建 Relay，streams 可为空
func New(chatModel einomodel.BaseChatModel, store MessageStore, streams *session.Manager, debug bool) *Relay {
	return &Relay{
		chatModel: chatModel,
		store:     store,
		streams:   streams,
		debug:     debug,
	}
}

// Stream 开始一轮对话
//
// 参数错误在返回前同步报告，此时没有调用模型。成功时返回的 channel 依次
// 产出若干 Text，然后是 Usage 和 Done；失败时以唯一的 Error 结束；
// ctx 取消时直接关闭，不落库也不发送结束事件。
func (r *Relay) Stream(ctx context.Context, req *Request) (<-chan event.Event, error) {
	modelID := req.ModelID
	if modelID == "" {
		modelID = catalog.DefaultModelID
	}
	if !catalog.IsKnown(modelID) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}

	turns := projector.ToProviderTurns(req.Messages, req.ImageData)
	if len(turns) == 0 {
		return nil, ErrEmptyMessages
	}
	system := prompt.BuildSystemPrompt(req.CustomInstructions, req.MemoryMarkdown, req.MemoryEnabled)
	input := append([]*schema.Message{schema.SystemMessage(system)}, turns...)

	ctx, cancel := context.WithCancel(ctx)
	var active *session.ActiveStream
	if req.ConversationID != "" && r.streams != nil {
		var err error
		active, err = r.streams.RegisterStream(ctx, req.OwnerID, req.ConversationID, cancel)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	rn := &run{
		relay:   r,
		req:     req,
		modelID: modelID,
		active:  active,
		events:  make(chan event.Event),
	}
	go rn.execute(ctx, cancel, input)
	return rn.events, nil
}

// Stop 取消会话中进行中的流，返回取消时已生成的内容
func (r *Relay) Stop(ownerID, conversationID string) (session.Progress, bool) {
	if r.streams == nil {
		return session.Progress{}, false
	}
	return r.streams.StopStream(ownerID, conversationID)
}

// Progress 返回会话中进行中的流的进度
func (r *Relay) Progress(ownerID, conversationID string) (session.Progress, bool) {
	if r.streams == nil {
		return session.Progress{}, false
	}
	stream := r.streams.GetStream(ownerID, conversationID)
	if stream == nil {
		return session.Progress{}, false
	}
	return stream.Progress(), true
}

// Wait 等待后台任务结束
func (r *Relay) Wait() {
	r.wg.Wait()
}

// touchConversation 后台刷新会话的更新时间，失败只记录日志
func (r *Relay) touchConversation(ownerID, conversationID string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := r.store.TouchConversation(ctx, ownerID, conversationID); err != nil {
			log.Printf("[Relay] failed to touch conversation %s: %v", conversationID, err)
		}
	}()
}

// run 一次调用的状态
type run struct {
	relay   *Relay
	req     *Request
	modelID string
	active  *session.ActiveStream
	events  chan event.Event
	state   State

	text         strings.Builder
	inputTokens  int
	outputTokens int
}

func (rn *run) execute(ctx context.Context, cancel context.CancelFunc, input []*schema.Message) {
	defer close(rn.events)
	defer cancel()
	if rn.active != nil {
		defer rn.relay.streams.UnregisterStream(rn.req.OwnerID, rn.req.ConversationID)
	}

	rn.transition(StateRequesting)
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "relay",
		Type:      "OpenAI",
		Component: components.ComponentOfChatModel,
	})

	stream, err := rn.relay.chatModel.Stream(ctx, input, einomodel.WithModel(rn.modelID))
	if err != nil {
		rn.fail(ctx, fmt.Errorf("failed to open stream: %w", err))
		return
	}
	defer stream.Close()

	rn.transition(StateStreaming)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rn.fail(ctx, fmt.Errorf("stream interrupted: %w", err))
			return
		}
		if chunk == nil {
			continue
		}
		if meta := chunk.ResponseMeta; meta != nil && meta.Usage != nil {
			rn.inputTokens = meta.Usage.PromptTokens
			rn.outputTokens = meta.Usage.CompletionTokens
		}
		if chunk.Content == "" {
			continue
		}

		rn.text.WriteString(chunk.Content)
		if rn.active != nil {
			rn.active.AppendChunk(chunk.Content)
		}
		if !rn.send(ctx, event.Text{Content: chunk.Content}) {
			rn.transition(StateCancelled)
			return
		}
	}

	rn.transition(StateFinalizing)
	if ctx.Err() != nil {
		rn.transition(StateCancelled)
		return
	}

	var costPtr *float64
	if cost, ok := catalog.ComputeCost(rn.modelID, rn.inputTokens, rn.outputTokens); ok {
		costPtr = &cost
	}

	if rn.req.ConversationID != "" {
		if err := rn.persist(ctx, costPtr); err != nil {
			rn.fail(ctx, err)
			return
		}
		rn.relay.touchConversation(rn.req.OwnerID, rn.req.ConversationID)
	}

	if !rn.send(ctx, event.Usage{
		InputTokens:  rn.inputTokens,
		OutputTokens: rn.outputTokens,
		CostUSD:      costPtr,
	}) {
		rn.transition(StateCancelled)
		return
	}
	if rn.send(ctx, event.Done{}) {
		rn.transition(StateCompleted)
	}
}

func (rn *run) persist(ctx context.Context, cost *float64) error {
	modelID := rn.modelID
	in, out := rn.inputTokens, rn.outputTokens
	msg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: rn.req.ConversationID,
		UserID:         rn.req.OwnerID,
		Role:           model.RoleAssistant,
		ContentText:    rn.text.String(),
		Model:          &modelID,
		TokenInput:     &in,
		TokenOutput:    &out,
		CostUSD:        cost,
	}
	if err := rn.relay.store.CreateMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to save assistant message: %w", err)
	}
	return nil
}

// fail 发送唯一的错误事件，ctx 已取消时视为取消
func (rn *run) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		rn.transition(StateCancelled)
		return
	}
	log.Printf("[Relay] conversation=%s model=%s: %v", rn.req.ConversationID, rn.modelID, err)
	rn.transition(StateFailed)
	rn.send(ctx, event.Error{Message: err.Error()})
}

func (rn *run) send(ctx context.Context, ev event.Event) bool {
	select {
	case rn.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (rn *run) transition(to State) {
	if rn.relay.debug {
		log.Printf("[Relay] conversation=%s %s -> %s", rn.req.ConversationID, rn.state, to)
	}
	rn.state = to
}
