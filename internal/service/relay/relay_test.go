package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/sanctuary/internal/model"
	"github.com/ashwinyue/sanctuary/internal/service/event"
	"github.com/ashwinyue/sanctuary/internal/service/projector"
	"github.com/ashwinyue/sanctuary/internal/service/prompt"
	"github.com/ashwinyue/sanctuary/internal/service/session"
	"github.com/ashwinyue/sanctuary/internal/testutil"
)

type memStore struct {
	mu        sync.Mutex
	messages  []*model.Message
	touched   []string
	createErr error
	touchErr  error
}

func (s *memStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *memStore) TouchConversation(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, id)
	return s.touchErr
}

func (s *memStore) saved() []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.Message(nil), s.messages...)
}

func collect(t *testing.T, ch <-chan event.Event) []event.Event {
	t.Helper()
	var out []event.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not finish")
			return out
		}
	}
}

func simpleRequest() *Request {
	return &Request{
		OwnerID:        "u1",
		ConversationID: "c1",
		Messages:       []projector.Turn{{Role: "user", Content: "What's 2+2?"}},
		ModelID:        "gpt-4o-2024-11-20",
	}
}

func TestRelay_Completed(t *testing.T) {
	fake := &testutil.FakeChatModel{
		Chunks: []string{"2", "+2", " is ", "4"},
		Usage:  &schema.TokenUsage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16},
	}
	store := &memStore{}
	r := New(fake, store, session.NewManager(nil), false)

	ch, err := r.Stream(context.Background(), simpleRequest())
	require.NoError(t, err)
	events := collect(t, ch)
	r.Wait()

	require.Len(t, events, 6)
	for i, want := range []string{"2", "+2", " is ", "4"} {
		assert.Equal(t, event.Text{Content: want}, events[i])
	}
	usage, ok := events[4].(event.Usage)
	require.True(t, ok)
	assert.Equal(t, 12, usage.InputTokens)
	assert.Equal(t, 4, usage.OutputTokens)
	require.NotNil(t, usage.CostUSD)
	assert.InDelta(t, 0.00007, *usage.CostUSD, 1e-12)
	assert.Equal(t, event.Done{}, events[5])

	saved := store.saved()
	require.Len(t, saved, 1)
	msg := saved[0]
	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.Equal(t, "2+2 is 4", msg.ContentText)
	assert.Equal(t, "c1", msg.ConversationID)
	assert.Equal(t, "u1", msg.UserID)
	require.NotNil(t, msg.Model)
	assert.Equal(t, "gpt-4o-2024-11-20", *msg.Model)
	assert.Equal(t, 12, *msg.TokenInput)
	assert.Equal(t, 4, *msg.TokenOutput)
	assert.InDelta(t, 0.00007, *msg.CostUSD, 1e-12)
	assert.Equal(t, []string{"c1"}, store.touched)
}

func TestRelay_ProviderInput(t *testing.T) {
	fake := &testutil.FakeChatModel{Chunks: []string{"ok"}}
	r := New(fake, &memStore{}, nil, false)

	req := simpleRequest()
	req.ModelID = ""
	req.CustomInstructions = "Be brief."
	req.MemoryMarkdown = "- likes tea"
	req.MemoryEnabled = true
	req.ImageData = "data:image/png;base64,AAAA"

	ch, err := r.Stream(context.Background(), req)
	require.NoError(t, err)
	collect(t, ch)
	r.Wait()

	inputs := fake.Inputs()
	require.Len(t, inputs, 1)
	msgs := inputs[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, prompt.BuildSystemPrompt("Be brief.", "- likes tea", true), msgs[0].Content)
	require.Len(t, msgs[1].MultiContent, 2)
	assert.Equal(t, "What's 2+2?", msgs[1].MultiContent[0].Text)

	assert.Equal(t, []string{"gpt-4o-2024-11-20"}, fake.Models())
}

func TestRelay_NoConversationNoPersist(t *testing.T) {
	fake := &testutil.FakeChatModel{Chunks: []string{"hi"}}
	store := &memStore{}
	r := New(fake, store, session.NewManager(nil), false)

	req := simpleRequest()
	req.ConversationID = ""
	ch, err := r.Stream(context.Background(), req)
	require.NoError(t, err)
	events := collect(t, ch)
	r.Wait()

	require.Len(t, events, 3)
	assert.IsType(t, event.Usage{}, events[1])
	assert.Equal(t, event.Done{}, events[2])
	assert.Empty(t, store.saved())
	assert.Empty(t, store.touched)
}

func TestRelay_ValidationErrors(t *testing.T) {
	fake := &testutil.FakeChatModel{Chunks: []string{"x"}}
	r := New(fake, &memStore{}, nil, false)

	req := simpleRequest()
	req.ModelID = "gpt-2"
	_, err := r.Stream(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnknownModel)

	req = simpleRequest()
	req.Messages = []projector.Turn{{Role: "system", Content: "only system"}}
	_, err = r.Stream(context.Background(), req)
	assert.ErrorIs(t, err, ErrEmptyMessages)

	assert.Empty(t, fake.Inputs())
}

func TestRelay_OpenFailure(t *testing.T) {
	fake := &testutil.FakeChatModel{OpenErr: errors.New("401 invalid api key")}
	store := &memStore{}
	r := New(fake, store, nil, false)

	ch, err := r.Stream(context.Background(), simpleRequest())
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 1)
	errEv, ok := events[0].(event.Error)
	require.True(t, ok)
	assert.Contains(t, errEv.Message, "invalid api key")
	assert.Empty(t, store.saved())
}

func TestRelay_MidStreamFailure(t *testing.T) {
	fake := &testutil.FakeChatModel{
		Chunks:  []string{"partial", " answer"},
		RecvErr: errors.New("connection reset"),
	}
	store := &memStore{}
	r := New(fake, store, nil, false)

	ch, err := r.Stream(context.Background(), simpleRequest())
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 3)
	assert.Equal(t, event.Text{Content: "partial"}, events[0])
	assert.Equal(t, event.Text{Content: " answer"}, events[1])
	assert.IsType(t, event.Error{}, events[2])
	assert.Empty(t, store.saved())
}

func TestRelay_PersistFailure(t *testing.T) {
	fake := &testutil.FakeChatModel{Chunks: []string{"hi"}}
	store := &memStore{createErr: errors.New("db down")}
	r := New(fake, store, nil, false)

	ch, err := r.Stream(context.Background(), simpleRequest())
	require.NoError(t, err)
	events := collect(t, ch)

	require.Len(t, events, 2)
	assert.Equal(t, event.Text{Content: "hi"}, events[0])
	errEv, ok := events[1].(event.Error)
	require.True(t, ok)
	assert.Contains(t, errEv.Message, "db down")
	assert.Empty(t, store.touched)
}

func TestRelay_TouchFailureSwallowed(t *testing.T) {
	fake := &testutil.FakeChatModel{Chunks: []string{"hi"}}
	store := &memStore{touchErr: errors.New("timeout")}
	r := New(fake, store, nil, false)

	ch, err := r.Stream(context.Background(), simpleRequest())
	require.NoError(t, err)
	events := collect(t, ch)
	r.Wait()

	require.Len(t, events, 3)
	assert.Equal(t, event.Done{}, events[2])
	assert.Len(t, store.saved(), 1)
}

func TestRelay_Cancelled(t *testing.T) {
	fake := &testutil.FakeChatModel{Chunks: []string{"Once", " upon"}, Hold: true}
	store := &memStore{}
	streams := session.NewManager(nil)
	r := New(fake, store, streams, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := r.Stream(ctx, simpleRequest())
	require.NoError(t, err)

	assert.Equal(t, event.Text{Content: "Once"}, <-ch)
	assert.Equal(t, event.Text{Content: " upon"}, <-ch)
	cancel()

	rest := collect(t, ch)
	assert.Empty(t, rest)
	assert.Empty(t, store.saved())
	assert.Nil(t, streams.GetStream("u1", "c1"))
}

func TestRelay_StopAndInFlight(t *testing.T) {
	fake := &testutil.FakeChatModel{Chunks: []string{"thinking"}, Hold: true}
	store := &memStore{}
	streams := session.NewManager(nil)
	r := New(fake, store, streams, false)

	ch, err := r.Stream(context.Background(), simpleRequest())
	require.NoError(t, err)
	assert.Equal(t, event.Text{Content: "thinking"}, <-ch)

	_, err = r.Stream(context.Background(), simpleRequest())
	assert.ErrorIs(t, err, session.ErrStreamInFlight)

	progress, ok := r.Progress("u1", "c1")
	require.True(t, ok)
	assert.Equal(t, 1, progress.Chunks)
	assert.Equal(t, "thinking", progress.Partial)
	assert.False(t, progress.Done)

	stopped, ok := r.Stop("u1", "c1")
	require.True(t, ok)
	assert.Equal(t, "thinking", stopped.Partial)
	assert.Empty(t, collect(t, ch))
	assert.Empty(t, store.saved())

	_, ok = r.Stop("u1", "c1")
	assert.False(t, ok)
	_, ok = r.Progress("u1", "c1")
	assert.False(t, ok)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateFinalizing.Terminal())
}
