package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/chat-gateway/backend/internal/handler/chat"
	middlewarePkg "github.com/zhouzirui/chat-gateway/backend/internal/middleware"
	"github.com/zhouzirui/chat-gateway/backend/pkg/utils"
)

// RouterConfig carries the HTTP-level settings.
type RouterConfig struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc chat.ChatService, logger *slog.Logger, cfg RouterConfig) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(cfg.AllowedOrigins))

	r.Get("/", handleLiveness)

	chatHandler := chat.New(chatSvc, logger, cfg.MaxBodyBytes)
	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
	})

	return r
}

func handleLiveness(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "Middleware server is running"})
}
