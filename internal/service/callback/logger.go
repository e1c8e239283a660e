// Package callback 提供 Eino Callback 日志支持
package callback

import (
	"context"
	"io"
	"log"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Logger 日志回调处理器
// 实现 callbacks.Handler 接口，记录模型调用与 token 用量
type Logger struct {
	EnableDebug bool // 是否启用调试模式
	logf        func(format string, args ...any)
}

// NewLogger 创建日志回调处理器
func NewLogger(enableDebug bool) *Logger {
	return &Logger{EnableDebug: enableDebug, logf: log.Printf}
}

// OnStart 组件执行开始时调用
func (l *Logger) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if !l.EnableDebug {
		return ctx
	}
	if in := model.ConvCallbackInput(input); in != nil {
		name := ""
		if in.Config != nil {
			name = in.Config.Model
		}
		l.logf("[Eino] OnStart: name=%s component=%s model=%s messages=%d",
			info.Name, info.Component, name, len(in.Messages))
		return ctx
	}
	l.logf("[Eino] OnStart: name=%s type=%s component=%s", info.Name, info.Type, info.Component)
	return ctx
}

// OnEnd 组件执行成功结束时调用
func (l *Logger) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if !l.EnableDebug {
		return ctx
	}
	if out := model.ConvCallbackOutput(output); out != nil && out.TokenUsage != nil {
		l.logf("[Eino] OnEnd: name=%s component=%s prompt_tokens=%d completion_tokens=%d",
			info.Name, info.Component, out.TokenUsage.PromptTokens, out.TokenUsage.CompletionTokens)
		return ctx
	}
	l.logf("[Eino] OnEnd: name=%s type=%s component=%s", info.Name, info.Type, info.Component)
	return ctx
}

// OnError 组件执行出错时调用
func (l *Logger) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	l.logf("[Eino] Error: name=%s type=%s component=%s error=%v",
		info.Name, info.Type, info.Component, err)
	return ctx
}

// OnStartWithStreamInput 流式输入开始时调用
func (l *Logger) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

// OnEndWithStreamOutput 流式输出结束时调用
//
// 回调拿到的是流的副本，必须读完并关闭。
func (l *Logger) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	go func() {
		defer output.Close()

		var chunks, promptTokens, completionTokens int
		for {
			frame, err := output.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				l.logf("[Eino] Stream error: name=%s error=%v", info.Name, err)
				return
			}
			chunks++
			if out := model.ConvCallbackOutput(frame); out != nil && out.TokenUsage != nil {
				promptTokens = out.TokenUsage.PromptTokens
				completionTokens = out.TokenUsage.CompletionTokens
			}
		}

		if l.EnableDebug {
			l.logf("[Eino] Stream end: name=%s component=%s chunks=%d prompt_tokens=%d completion_tokens=%d",
				info.Name, info.Component, chunks, promptTokens, completionTokens)
		}
	}()
	return ctx
}

// SetupGlobalCallbacks 设置全局回调
func SetupGlobalCallbacks(enableDebug bool) {
	handler := NewLogger(enableDebug)
	callbacks.AppendGlobalHandlers(handler)
	log.Printf("[Eino] Global callbacks registered (debug=%v)", enableDebug)
}
