package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zhouzirui/chat-gateway/backend/internal/model/chat"
	"github.com/zhouzirui/chat-gateway/backend/internal/telemetry"
)

// Default generation parameters.
const (
	DefaultMaxOutputTokens = 1000
	DefaultTemperature     = float32(0.9)
	DefaultTimeout         = 60 * time.Second
)

// GenerationConfig holds the sampling parameters applied to every call of a conversation.
type GenerationConfig struct {
	MaxOutputTokens int
	Temperature     float32
}

// Options tunes a Service. Zero values fall back to the defaults above.
type Options struct {
	Generation GenerationConfig
	Timeout    time.Duration
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Metrics    *telemetry.Metrics
	// Now stamps new conversations; tests override it.
	Now func() time.Time
}

// Service starts conversations against a chat model.
type Service struct {
	chain      compose.Runnable[[]*schema.Message, *schema.Message]
	generation GenerationConfig
	timeout    time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *telemetry.Metrics
	now        func() time.Time
}

// NewService compiles the generation chain around chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel, opts Options) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	chain := compose.NewChain[[]*schema.Message, *schema.Message]()
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	svc := &Service{
		chain:      runnable,
		generation: opts.Generation,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
		tracer:     opts.Tracer,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
	// Temperature 0 is valid; only an empty config takes the default.
	if svc.generation == (GenerationConfig{}) {
		svc.generation.Temperature = DefaultTemperature
	}
	if svc.generation.MaxOutputTokens <= 0 {
		svc.generation.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if svc.timeout <= 0 {
		svc.timeout = DefaultTimeout
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.tracer == nil {
		svc.tracer = otel.Tracer(telemetry.ServiceName)
	}
	if svc.now == nil {
		svc.now = time.Now
	}

	return svc, nil
}

// StartConversation opens a conversation seeded with history. Turns with an
// unknown role are dropped; order is preserved.
func (s *Service) StartConversation(history []chat.Turn) *Conversation {
	return &Conversation{
		svc:       s,
		history:   buildHistoryMessages(history),
		params:    s.generation,
		createdAt: s.now(),
		sem:       make(chan struct{}, 1),
	}
}

func (s *Service) timeoutError() error {
	return fmt.Errorf("ai provider timed out after %s: %w", s.timeout, context.DeadlineExceeded)
}

// generate runs one provider round trip; ctx carries the call deadline.
func (s *Service) generate(ctx context.Context, input []*schema.Message, params GenerationConfig) (*schema.Message, error) {
	ctx, span := s.tracer.Start(ctx, "ai.generate", trace.WithAttributes(
		attribute.Int("ai.input_messages", len(input)),
		attribute.Int("ai.max_output_tokens", params.MaxOutputTokens),
	))
	defer span.End()

	start := time.Now()
	response, err := s.chain.Invoke(ctx, input, compose.WithChatModelOption(
		model.WithMaxTokens(params.MaxOutputTokens),
		model.WithTemperature(params.Temperature),
	))
	elapsed := time.Since(start)

	switch {
	case err != nil:
		err = fmt.Errorf("failed to run AI chain: %w", err)
	case response == nil || response.Content == "":
		err = errors.New("ai provider returned an empty response")
	}

	s.metrics.ProviderCall(ctx, elapsed, err != nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.logger.Debug("ai response generated", "input_messages", len(input), "length", len(response.Content), "duration", elapsed)
	return response, nil
}

func buildHistoryMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}

	return history
}
