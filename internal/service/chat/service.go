package chat

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/zhouzirui/chat-gateway/backend/internal/model/chat"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/ai"
	"github.com/zhouzirui/chat-gateway/backend/internal/telemetry"
)

// ConversationStarter opens new conversations with the model provider.
type ConversationStarter interface {
	StartConversation(history []chat.Turn) *ai.Conversation
}

// Request is one inbound chat message.
type Request struct {
	Message   string
	History   []chat.Turn
	SessionID string
}

// Result is the generated reply and the session it belongs to.
type Result struct {
	Response  string
	SessionID string
}

// Service resolves sessions and relays messages to the provider.
type Service struct {
	store   Store
	starter ConversationStarter
	logger  *slog.Logger
	metrics *telemetry.Metrics
	newID   func() string
}

// NewService wires the chat service.
func NewService(store Store, starter ConversationStarter, logger *slog.Logger, metrics *telemetry.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		starter: starter,
		logger:  logger,
		metrics: metrics,
		newID:   uuid.NewString,
	}
}

// Chat sends req.Message within the session named by req.SessionID, creating
// the session when it is absent or unknown.
func (s *Service) Chat(ctx context.Context, req Request) (Result, error) {
	if req.Message == "" {
		s.metrics.ChatRequest(ctx, telemetry.OutcomeInvalid)
		return Result{}, ErrMessageRequired
	}

	sessionID, conv := s.resolve(ctx, req)

	text, err := conv.Send(ctx, req.Message)
	if err != nil {
		s.metrics.ChatRequest(ctx, telemetry.OutcomeUpstream)
		return Result{SessionID: sessionID}, &UpstreamError{SessionID: sessionID, Err: err}
	}

	s.metrics.ChatRequest(ctx, telemetry.OutcomeOK)
	return Result{Response: text, SessionID: sessionID}, nil
}

// Conversation returns the stored conversation for id.
func (s *Service) Conversation(id string) (*ai.Conversation, bool) {
	return s.store.Get(id)
}

func (s *Service) resolve(ctx context.Context, req Request) (string, *ai.Conversation) {
	if req.SessionID != "" {
		if conv, ok := s.store.Get(req.SessionID); ok {
			return req.SessionID, conv
		}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.newID()
	}

	conv, loaded := s.store.LoadOrStore(sessionID, s.starter.StartConversation(req.History))
	if !loaded {
		s.metrics.SessionCreated(ctx)
		s.logger.Info("session created", "session_id", sessionID, "history_turns", len(conv.Turns()))
	}
	return sessionID, conv
}
