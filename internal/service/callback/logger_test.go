package callback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) logf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func newTestLogger(debug bool) (*Logger, *recorder) {
	rec := &recorder{}
	return &Logger{EnableDebug: debug, logf: rec.logf}, rec
}

var info = &callbacks.RunInfo{Name: "relay", Type: "OpenAI", Component: "ChatModel"}

func TestLogger_OnEndUsage(t *testing.T) {
	l, rec := newTestLogger(true)

	l.OnEnd(context.Background(), info, &model.CallbackOutput{
		TokenUsage: &model.TokenUsage{PromptTokens: 12, CompletionTokens: 4},
	})

	lines := rec.snapshot()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "prompt_tokens=12")
	assert.Contains(t, lines[0], "completion_tokens=4")
}

func TestLogger_QuietWithoutDebug(t *testing.T) {
	l, rec := newTestLogger(false)

	l.OnStart(context.Background(), info, &model.CallbackInput{})
	l.OnEnd(context.Background(), info, &model.CallbackOutput{})
	assert.Empty(t, rec.snapshot())

	l.OnError(context.Background(), info, errors.New("upstream 500"))
	lines := rec.snapshot()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "upstream 500")
}

func TestLogger_OnEndWithStreamOutput(t *testing.T) {
	l, rec := newTestLogger(true)

	sr, sw := schema.Pipe[callbacks.CallbackOutput](3)
	sw.Send(&model.CallbackOutput{Message: schema.AssistantMessage("2", nil)}, nil)
	sw.Send(&model.CallbackOutput{Message: schema.AssistantMessage("+2", nil)}, nil)
	sw.Send(&model.CallbackOutput{TokenUsage: &model.TokenUsage{PromptTokens: 7, CompletionTokens: 2}}, nil)
	sw.Close()

	l.OnEndWithStreamOutput(context.Background(), info, sr)

	assert.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)
	line := rec.snapshot()[0]
	assert.Contains(t, line, "chunks=3")
	assert.Contains(t, line, "prompt_tokens=7")
}
