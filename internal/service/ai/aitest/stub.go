// Package aitest provides scripted chat models for tests.
package aitest

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ReplyFunc produces the stub's answer for one call.
type ReplyFunc func(ctx context.Context, input []*schema.Message) (string, error)

// Call captures what one Generate invocation received.
type Call struct {
	Input   []*schema.Message
	Options *model.Options
}

// StubModel is an in-memory model.BaseChatModel.
type StubModel struct {
	reply ReplyFunc

	mu    sync.Mutex
	calls []Call
}

// New returns a stub answering with reply.
func New(reply ReplyFunc) *StubModel {
	return &StubModel{reply: reply}
}

// Echo answers "Echo: <last message>".
func Echo() *StubModel {
	return New(func(_ context.Context, input []*schema.Message) (string, error) {
		return "Echo: " + input[len(input)-1].Content, nil
	})
}

// TurnCounter answers with the number of messages it was sent.
func TurnCounter() *StubModel {
	return New(func(_ context.Context, input []*schema.Message) (string, error) {
		return fmt.Sprintf("turns=%d", len(input)), nil
	})
}

// Failing always returns err.
func Failing(err error) *StubModel {
	return New(func(context.Context, []*schema.Message) (string, error) {
		return "", err
	})
}

// Hanging blocks until the call context ends.
func Hanging() *StubModel {
	return New(func(ctx context.Context, _ []*schema.Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
}

// Generate implements model.BaseChatModel.
func (m *StubModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	copied := make([]*schema.Message, len(input))
	copy(copied, input)

	m.mu.Lock()
	m.calls = append(m.calls, Call{Input: copied, Options: model.GetCommonOptions(&model.Options{}, opts...)})
	m.mu.Unlock()

	content, err := m.reply(ctx, input)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(content, nil), nil
}

// Stream implements model.BaseChatModel with a single-chunk stream.
func (m *StubModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Calls returns every recorded invocation.
func (m *StubModel) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}
