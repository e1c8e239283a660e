package testutil

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// FakeChatModel 可编排的流式模型
type FakeChatModel struct {
	// Chunks 依次下发的文本片段
	Chunks []string
	// Usage 不为空时在最后一个片段之后下发
	Usage *schema.TokenUsage
	// OpenErr 打开流时返回的错误
	OpenErr error
	// RecvErr 所有片段发送后返回的错误
	RecvErr error
	// Hold 所有片段发送后阻塞直到 ctx 取消
	Hold bool

	mu     sync.Mutex
	inputs [][]*schema.Message
	models []string
}

// Generate 实现 model.BaseChatModel
func (f *FakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.record(input, opts)
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	content := ""
	for _, c := range f.Chunks {
		content += c
	}
	return schema.AssistantMessage(content, nil), nil
}

// Stream 实现 model.BaseChatModel
func (f *FakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.record(input, opts)
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}

	sr, sw := schema.Pipe[*schema.Message](0)
	go func() {
		defer sw.Close()
		for _, c := range f.Chunks {
			if closed := sw.Send(schema.AssistantMessage(c, nil), nil); closed {
				return
			}
		}
		if f.Usage != nil {
			sw.Send(&schema.Message{
				Role:         schema.Assistant,
				ResponseMeta: &schema.ResponseMeta{Usage: f.Usage},
			}, nil)
		}
		if f.Hold {
			<-ctx.Done()
			sw.Send(nil, ctx.Err())
			return
		}
		if f.RecvErr != nil {
			sw.Send(nil, f.RecvErr)
		}
	}()
	return sr, nil
}

// Inputs 返回每次调用收到的消息
func (f *FakeChatModel) Inputs() [][]*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]*schema.Message(nil), f.inputs...)
}

// Models 返回每次调用指定的模型
func (f *FakeChatModel) Models() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.models...)
}

func (f *FakeChatModel) record(input []*schema.Message, opts []model.Option) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	options := model.GetCommonOptions(nil, opts...)
	name := ""
	if options.Model != nil {
		name = *options.Model
	}
	f.models = append(f.models, name)
}
