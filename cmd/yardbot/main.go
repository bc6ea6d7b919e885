package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stocklens/yardbot/internal/anthropic"
	"github.com/stocklens/yardbot/internal/api"
	"github.com/stocklens/yardbot/internal/apply"
	"github.com/stocklens/yardbot/internal/audit"
	"github.com/stocklens/yardbot/internal/chat"
	"github.com/stocklens/yardbot/internal/config"
	"github.com/stocklens/yardbot/internal/photos"
	"github.com/stocklens/yardbot/internal/pipeline"
	"github.com/stocklens/yardbot/internal/processor"
	"github.com/stocklens/yardbot/internal/resolver"
	"github.com/stocklens/yardbot/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("yardbot starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tuning, err := config.LoadTuning(cfg.TuningFile)
	if err != nil {
		slog.Error("failed to load tuning file", "path", cfg.TuningFile, "error", err)
		os.Exit(1)
	}

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Anthropic client
	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	slog.Info("anthropic client ready", "model", cfg.AnthropicModel)

	// Extraction pipeline and audit pass
	pipe := pipeline.New(llm, slog.Default(), pipeline.DefaultConfig())
	auditor := audit.New(llm, slog.Default())

	// Resolver and applier, with tuned matcher and thresholds
	res := resolver.New(apply.Directory(db), tuning.NewMatcher(), tuning.ResolverConfig())
	applier := apply.New(db, res, slog.Default())

	// NATS chat transport
	chatClient, err := chat.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer chatClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Photo enrichment (optional — without a media service, photo messages
	// stay as placeholders)
	var photoStore processor.PhotoStore
	var captioner processor.Captioner
	if cfg.PhotosURL != "" {
		photoStore = photos.NewClient(cfg.PhotosURL)
		captioner = llm
		slog.Info("photo enrichment ready", "url", cfg.PhotosURL)
	} else {
		slog.Warn("photos not configured — photo messages will not be captioned")
	}

	// Processor — the main intake path
	proc := processor.New(pipe, auditor, applier, chatClient, photoStore, captioner,
		tuning.BatchConfig(), slog.Default())

	// Subscribe to inbound chat messages
	if err := chatClient.Subscribe(chat.SubjectInbound, proc.HandleMessage); err != nil {
		slog.Error("failed to subscribe to chat messages", "error", err)
		os.Exit(1)
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, proc)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration
	if err := chatClient.Publish(chat.SubjectRegistered, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("yardbot ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	proc.Close() // flush pending windows through processing
	cancel()
	slog.Info("yardbot stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
