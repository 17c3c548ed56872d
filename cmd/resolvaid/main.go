// Command resolvaid runs the ResolvAI support daemon: the REST API,
// the websocket chat hub, and the AI responder.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/resolvai/resolvai/internal/api"
	"github.com/resolvai/resolvai/internal/auth"
	"github.com/resolvai/resolvai/internal/config"
	"github.com/resolvai/resolvai/internal/hub"
	"github.com/resolvai/resolvai/internal/logring"
	"github.com/resolvai/resolvai/internal/mail"
	"github.com/resolvai/resolvai/internal/notify"
	"github.com/resolvai/resolvai/internal/provider"
	"github.com/resolvai/resolvai/internal/responder"
	"github.com/resolvai/resolvai/internal/store"
	"github.com/resolvai/resolvai/internal/ws"
)

func main() {
	envFile := flag.String("env", "", "Path to .env file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	ring := logring.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logring.NewHandler(jsonHandler, ring))

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("resolvaid starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	// 1. Storage
	st, err := store.NewSQLite(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// 2. AI responder. Without an API key the daemon still runs; tickets
	// simply never get automated replies.
	var resp *responder.Responder
	if cfg.AI.APIKey != "" {
		var prov provider.Provider
		switch cfg.AI.Provider {
		case "anthropic":
			var opts []provider.AnthropicOption
			if cfg.AI.BaseURL != "" {
				opts = append(opts, provider.WithAnthropicBaseURL(cfg.AI.BaseURL))
			}
			if cfg.AI.Model != "" {
				opts = append(opts, provider.WithAnthropicModel(cfg.AI.Model))
			}
			prov = provider.NewAnthropic(cfg.AI.APIKey, opts...)
		default: // "openai"
			var opts []provider.OpenAIOption
			if cfg.AI.BaseURL != "" {
				opts = append(opts, provider.WithBaseURL(cfg.AI.BaseURL))
			}
			if cfg.AI.Model != "" {
				opts = append(opts, provider.WithModel(cfg.AI.Model))
			}
			prov = provider.NewOpenAI(cfg.AI.APIKey, opts...)
		}
		resp = responder.New(prov, logger.With("component", "responder"))
		logger.Info("provider initialized", "type", cfg.AI.Provider, "model", cfg.AI.Model)
	} else {
		logger.Warn("no AI api key configured, automated replies disabled")
	}

	// 3. Chat hub
	opts := []hub.Option{hub.WithIdleTTL(cfg.Hub.WorkerIdleTTL)}
	if cfg.Notify.SlackWebhookURL != "" {
		opts = append(opts, hub.WithNotifier(notify.NewSlack(cfg.Notify.SlackWebhookURL, logger.With("component", "notify"))))
	}
	if cfg.SMTP.Host != "" {
		opts = append(opts, hub.WithMailer(mail.New(mail.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})))
	}
	h := hub.New(st, resp, logger.With("component", "hub"), opts...)
	defer h.Close()

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Idle worker sweep
	sched := cron.New()
	if _, err := sched.AddFunc(cfg.Hub.SweepSchedule, func() {
		if n := h.Sweep(); n > 0 {
			logger.Debug("swept idle ticket workers", "count", n)
		}
	}); err != nil {
		logger.Error("invalid sweep schedule", "schedule", cfg.Hub.SweepSchedule, "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	// 5. HTTP: REST API plus the websocket endpoint
	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	wsHandler := ws.NewHandler(h, tokens, logger.With("component", "ws"))
	srv := api.NewServer(st, h, tokens, api.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, wsHandler, ring, logger.With("component", "api"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- safeRun(logger, "api-server", func() error { return srv.Start(ctx) })
	}()

	// 6. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			logger.Error("api server failed", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("resolvaid stopped")
}

// safeRun runs fn with panic recovery.
func safeRun(logger *slog.Logger, name string, fn func() error) error {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	return fn()
}
