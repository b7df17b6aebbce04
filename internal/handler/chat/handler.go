package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/chat-gateway/backend/internal/model/chat"
	chatService "github.com/zhouzirui/chat-gateway/backend/internal/service/chat"
	"github.com/zhouzirui/chat-gateway/backend/pkg/utils"
)

// Response messages returned to clients.
const (
	msgMessageRequired = "Message is required"
	msgInvalidBody     = "invalid request body"
	msgUpstreamFailure = "Failed to get AI response"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20

// ChatService is the behaviour the handler needs from the chat service.
type ChatService interface {
	Chat(ctx context.Context, req chatService.Request) (chatService.Result, error)
}

// Handler serves the chat endpoint.
type Handler struct {
	chatSvc      ChatService
	logger       *slog.Logger
	maxBodyBytes int64
}

// New creates a chat handler.
func New(chatSvc ChatService, logger *slog.Logger, maxBodyBytes int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{
		chatSvc:      chatSvc,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

// RegisterRoutes registers chat routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

type historyEntry struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// chatPayload keeps message and sessionId raw: clients send numbers and
// booleans there too, and any truthy scalar is accepted.
type chatPayload struct {
	Message   json.RawMessage `json:"message"`
	History   json.RawMessage `json:"history"`
	SessionID json.RawMessage `json:"sessionId"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatPayload

	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	message, err := truthyText(payload.Message)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	sessionID, err := truthyText(payload.SessionID)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	result, err := h.chatSvc.Chat(r.Context(), chatService.Request{
		Message:   message,
		History:   parseHistory(payload.History),
		SessionID: sessionID,
	})
	if err != nil {
		h.respondChatError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, chatResponse{
		Response:  result.Response,
		SessionID: result.SessionID,
	})
}

func (h *Handler) respondChatError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, chatService.ErrMessageRequired) {
		utils.RespondError(w, http.StatusBadRequest, msgMessageRequired)
		return
	}

	attrs := []any{"request_id", middleware.GetReqID(r.Context()), "error", err}
	var upstream *chatService.UpstreamError
	if errors.As(err, &upstream) {
		attrs = append(attrs, "session_id", upstream.SessionID)
	}
	h.logger.Error("chat request failed", attrs...)

	utils.RespondErrorDetails(w, http.StatusInternalServerError, msgUpstreamFailure, err.Error())
}

// parseHistory keeps only array-shaped history. Entries that do not decode
// and entries with unknown roles are skipped one by one.
func parseHistory(raw json.RawMessage) []chat.Turn {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	turns := make([]chat.Turn, 0, len(items))
	for _, item := range items {
		var entry historyEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			continue
		}
		role, ok := chat.ParseRole(entry.Role)
		if !ok {
			continue
		}
		content, _, err := scalarText(entry.Content)
		if err != nil {
			continue
		}
		turns = append(turns, chat.Turn{Role: role, Content: content})
	}
	return turns
}

var errNotScalar = errors.New("value is not a JSON scalar")

// scalarText renders a JSON string, number or boolean as text and reports
// whether it is truthy (non-empty, non-zero, true). Absent and null values
// are empty and falsy.
func scalarText(raw json.RawMessage) (string, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", false, nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, err
		}
		return s, s != "", nil
	case 't':
		return "true", true, nil
	case 'f':
		return "false", false, nil
	case '{', '[':
		return "", false, errNotScalar
	}

	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return "", false, err
	}
	return string(raw), f != 0, nil
}

// truthyText is scalarText with falsy values mapped to "".
func truthyText(raw json.RawMessage) (string, error) {
	text, truthy, err := scalarText(raw)
	if err != nil || !truthy {
		return "", err
	}
	return text, nil
}
