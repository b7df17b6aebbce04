package ai_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/chat-gateway/backend/internal/model/chat"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/ai"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/ai/aitest"
)

func newService(t *testing.T, stub *aitest.StubModel, opts ai.Options) *ai.Service {
	t.Helper()
	svc, err := ai.NewService(context.Background(), stub, opts)
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresModel(t *testing.T) {
	_, err := ai.NewService(context.Background(), nil, ai.Options{})
	assert.Error(t, err)
}

func TestStartConversationTranslatesHistory(t *testing.T) {
	svc := newService(t, aitest.Echo(), ai.Options{})

	conv := svc.StartConversation([]chat.Turn{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "hello"},
		{Role: chat.Role("system"), Content: "ignore"},
	})

	assert.Equal(t, []chat.Turn{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "hello"},
	}, conv.Turns())
}

func TestStartConversationAppliesDefaults(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := newService(t, aitest.Echo(), ai.Options{Now: func() time.Time { return now }})

	conv := svc.StartConversation(nil)

	assert.Equal(t, ai.GenerationConfig{MaxOutputTokens: 1000, Temperature: 0.9}, conv.Params())
	assert.Equal(t, now, conv.CreatedAt())
	assert.Empty(t, conv.Turns())
}

func TestSendPassesGenerationOptions(t *testing.T) {
	stub := aitest.Echo()
	svc := newService(t, stub, ai.Options{Generation: ai.GenerationConfig{MaxOutputTokens: 256, Temperature: 0}})

	conv := svc.StartConversation(nil)
	reply, err := conv.Send(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Echo: Hello", reply)

	calls := stub.Calls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Options.MaxTokens)
	require.NotNil(t, calls[0].Options.Temperature)
	assert.Equal(t, 256, *calls[0].Options.MaxTokens)
	assert.Equal(t, float32(0), *calls[0].Options.Temperature)
}

func TestSendAccumulatesTurns(t *testing.T) {
	stub := aitest.TurnCounter()
	svc := newService(t, stub, ai.Options{})

	conv := svc.StartConversation([]chat.Turn{
		{Role: chat.RoleUser, Content: "earlier"},
		{Role: chat.RoleAssistant, Content: "reply"},
	})

	first, err := conv.Send(context.Background(), "one")
	require.NoError(t, err)
	second, err := conv.Send(context.Background(), "two")
	require.NoError(t, err)

	assert.Equal(t, "turns=3", first)
	assert.Equal(t, "turns=5", second)

	calls := stub.Calls()
	require.Len(t, calls, 2)
	last := calls[1].Input
	require.Len(t, last, 5)
	assert.Equal(t, schema.User, last[2].Role)
	assert.Equal(t, "one", last[2].Content)
	assert.Equal(t, schema.Assistant, last[3].Role)
	assert.Equal(t, "turns=3", last[3].Content)
	assert.Equal(t, "two", last[4].Content)

	assert.Len(t, conv.Turns(), 6)
}

func TestSendFailureKeepsTranscript(t *testing.T) {
	svc := newService(t, aitest.Failing(errors.New("quota exceeded")), ai.Options{})
	conv := svc.StartConversation([]chat.Turn{{Role: chat.RoleUser, Content: "hi"}})

	_, err := conv.Send(context.Background(), "again")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Len(t, conv.Turns(), 1)
}

func TestSendEmptyReplyIsError(t *testing.T) {
	stub := aitest.New(func(context.Context, []*schema.Message) (string, error) { return "", nil })
	svc := newService(t, stub, ai.Options{})

	_, err := svc.StartConversation(nil).Send(context.Background(), "hi")
	assert.Error(t, err)
}

func TestSendTimesOut(t *testing.T) {
	svc := newService(t, aitest.Hanging(), ai.Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := svc.StartConversation(nil).Send(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

// gatedModel blocks each call until release is closed or the call ends.
func gatedModel(started chan<- struct{}, release <-chan struct{}) *aitest.StubModel {
	return aitest.New(func(ctx context.Context, input []*schema.Message) (string, error) {
		started <- struct{}{}
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
}

func TestSendWaitHonoursCancellation(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	svc := newService(t, gatedModel(started, release), ai.Options{})
	conv := svc.StartConversation(nil)

	firstErr := make(chan error, 1)
	go func() {
		_, err := conv.Send(context.Background(), "first")
		firstErr <- err
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := conv.Send(ctx, "second")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	require.NoError(t, <-firstErr)
	assert.Len(t, conv.Turns(), 2)
	assert.Len(t, started, 0)
}

func TestSendWaitBoundedByTimeout(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	defer close(release)
	svc := newService(t, gatedModel(started, release), ai.Options{Timeout: 50 * time.Millisecond})
	conv := svc.StartConversation(nil)

	firstErr := make(chan error, 1)
	go func() {
		_, err := conv.Send(context.Background(), "first")
		firstErr <- err
	}()
	<-started

	start := time.Now()
	_, err := conv.Send(context.Background(), "second")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	assert.ErrorIs(t, <-firstErr, context.DeadlineExceeded)
	assert.Empty(t, conv.Turns())
}
