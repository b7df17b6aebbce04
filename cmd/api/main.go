package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/chat-gateway/backend/internal/config"
	"github.com/zhouzirui/chat-gateway/backend/internal/handler"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/ai"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/chat"
	"github.com/zhouzirui/chat-gateway/backend/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("chat gateway failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A missing .env is fine; the process environment still applies.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, logCloser, err := telemetry.NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	if envErr != nil {
		logger.Warn("failed to load .env file, continuing with system environment variables only", "error", envErr)
	}

	tracer, meter, shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer shutdownTelemetry()

	metrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		return err
	}

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		return fmt.Errorf("failed to create chat model: %w", err)
	}

	aiService, err := ai.NewService(ctx, chatModel, ai.Options{
		Generation: ai.GenerationConfig{
			MaxOutputTokens: cfg.AI.MaxOutputTokens,
			Temperature:     cfg.AI.Temperature,
		},
		Timeout: cfg.AI.Timeout,
		Logger:  logger.With("component", "ai"),
		Tracer:  tracer,
		Metrics: metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize AI service: %w", err)
	}
	logger.Info("AI service initialized", "model", cfg.AI.Model, "timeout", cfg.AI.Timeout)

	store := chat.NewMemoryStore(cfg.Session.MaxEntries)
	if err := telemetry.RegisterSessionGauge(meter, store.Len); err != nil {
		return err
	}

	sweeper := chat.NewSweeper(store, cfg.Session.SweepInterval, cfg.Session.TTL, logger.With("component", "sweeper"), metrics)
	go sweeper.Run(ctx)

	chatService := chat.NewService(store, aiService, logger.With("component", "chat"), metrics)

	router := handler.NewRouter(chatService, logger, handler.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})

	return startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("middleware server listening", "addr", serverCfg.Addr, "chat_endpoint", "/api/chat")
	if err := runServer(ctx, srv, serverCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("middleware server stopped")
	return nil
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
