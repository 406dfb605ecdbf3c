package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/hojokin/internal/agent"
	"github.com/ent0n29/hojokin/internal/chat"
	"github.com/ent0n29/hojokin/internal/config"
	"github.com/ent0n29/hojokin/internal/httpapi"
	"github.com/ent0n29/hojokin/internal/logging"
	"github.com/ent0n29/hojokin/internal/memory"
	"github.com/ent0n29/hojokin/internal/observability"
	"github.com/ent0n29/hojokin/internal/reliability"
	"github.com/ent0n29/hojokin/internal/thread"
)

var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Start the chat web server",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		cfg.Debug = cfg.Debug || debug

		var flushLog func()
		ctx, flushLog = logging.NewContext(ctx, cfg.Debug)
		defer flushLog()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := logging.FromCtx(ctx)
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := thread.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	_, tools, err := newSubsidyTools(cfg, metrics)
	if err != nil {
		return err
	}

	ag, err := agent.New(agent.Config{
		Name:          cfg.AgentName,
		Mode:          cfg.AgentMode,
		APIKey:        cfg.OpenAIAPIKey,
		BaseURL:       cfg.OpenAIBaseURL,
		Model:         cfg.OpenAIModel,
		MaxToolRounds: cfg.AgentMaxToolRounds,
		HistoryLimit:  cfg.AgentHistoryLimit,
		Tools:         tools,
		Store:         store,
		Metrics:       metrics,
	})
	if err != nil {
		return err
	}

	memClient, err := memory.NewClient(memory.ClientConfig{
		APIKey:  cfg.Mem0APIKey,
		BaseURL: cfg.Mem0BaseURL,
		Retry:   reliability.DefaultRetryConfig(),
		Metrics: metrics,
	})
	if err != nil {
		return err
	}
	gateway := memory.NewGateway(memClient, memory.GatewayConfig{
		RedactPII:          cfg.MemoryRedactPII,
		CustomInstructions: cfg.MemoryCustomInstructions,
		Metrics:            metrics,
	})

	handler := chat.NewHandler(gateway, agent.NewRegistry(ag), chat.Config{
		AgentName:            cfg.AgentName,
		OwnerID:              cfg.MemoryOwnerID,
		RecallTimeout:        cfg.MemoryRecallTimeout,
		WriteTimeout:         cfg.MemoryWriteTimeout,
		TopK:                 cfg.MemoryTopK,
		Threshold:            cfg.MemoryThreshold,
		DisableKeywordSearch: !cfg.MemoryKeywordSearch,
		DisableRerank:        !cfg.MemoryRerank,
		ShortTermPageSize:    cfg.MemoryShortTermPageSize,
		Location:             cfg.Location(),
	}, metrics)

	srv := httpapi.New(cfg, handler, metrics, store.Mode())
	baseCtx := context.WithoutCancel(ctx)
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.BindAddr).
			Str("agent", ag.Name()).
			Str("store", store.Mode()).
			Msg("hojokin listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
