package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/chat-gateway/backend/internal/model/chat"
)

// Conversation is the server-side state of one chat session: the accumulated
// turns plus the generation parameters they are sent with.
type Conversation struct {
	svc       *Service
	params    GenerationConfig
	createdAt time.Time

	// sem admits one Send at a time; waiting on it honours the caller's ctx.
	sem chan struct{}

	mu      sync.Mutex
	history []*schema.Message
}

// Send forwards message with the accumulated history and returns the reply.
// Calls on one conversation are serialized; the service timeout covers both
// the wait for an earlier call and the provider round trip. The user turn and
// the reply are appended only when the provider succeeds.
func (c *Conversation) Send(ctx context.Context, message string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.svc.timeout)
	defer cancel()

	select {
	case c.sem <- struct{}{}:
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", c.svc.timeoutError()
		}
		return "", fmt.Errorf("waiting for conversation: %w", callCtx.Err())
	}
	defer func() { <-c.sem }()

	user := schema.UserMessage(message)
	c.mu.Lock()
	input := make([]*schema.Message, 0, len(c.history)+1)
	input = append(input, c.history...)
	c.mu.Unlock()
	input = append(input, user)

	reply, err := c.svc.generate(callCtx, input, c.params)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", c.svc.timeoutError()
		}
		return "", err
	}

	c.mu.Lock()
	c.history = append(c.history, user, schema.AssistantMessage(reply.Content, nil))
	c.mu.Unlock()
	return reply.Content, nil
}

// Turns returns a copy of the transcript.
func (c *Conversation) Turns() []chat.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	turns := make([]chat.Turn, 0, len(c.history))
	for _, msg := range c.history {
		switch msg.Role {
		case schema.User:
			turns = append(turns, chat.Turn{Role: chat.RoleUser, Content: msg.Content})
		case schema.Assistant:
			turns = append(turns, chat.Turn{Role: chat.RoleAssistant, Content: msg.Content})
		}
	}
	return turns
}

// Params returns the generation parameters fixed at creation.
func (c *Conversation) Params() GenerationConfig {
	return c.params
}

// CreatedAt is when the conversation was started.
func (c *Conversation) CreatedAt() time.Time {
	return c.createdAt
}
