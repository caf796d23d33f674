package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/askcart-ai/assistant/internal/analytics"
	"github.com/askcart-ai/assistant/internal/assistant"
	"github.com/askcart-ai/assistant/internal/catalog"
	"github.com/askcart-ai/assistant/internal/config"
	"github.com/askcart-ai/assistant/internal/gateway"
	"github.com/askcart-ai/assistant/internal/handler"
	"github.com/askcart-ai/assistant/internal/llm"
	"github.com/askcart-ai/assistant/internal/model"
	natsclient "github.com/askcart-ai/assistant/internal/nats"
	"github.com/askcart-ai/assistant/internal/service"
	"github.com/askcart-ai/assistant/internal/store"
	"github.com/askcart-ai/assistant/pkg/logger"
	"github.com/askcart-ai/assistant/pkg/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat and catalog API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting AskCart assistant",
		zap.String("store", cfg.StoreBackend),
		zap.String("llm_provider", cfg.LLMProvider),
		zap.String("analytics_sink", cfg.AnalyticsSink),
	)

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "askcart-assistant", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Conversation store and catalog
	convStore, cat, sqliteStore, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer convStore.Close()

	// NATS is only needed when analytics go to JetStream.
	var natsClient *natsclient.Client
	if cfg.AnalyticsSink == "nats" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
			Name:     "askcart-assistant",
		}, log)
		if err != nil {
			return err
		}
		defer natsClient.Close()
	}

	sink, closeSink, err := analyticsSink(ctx, cfg, sqliteStore, natsClient, log)
	if err != nil {
		return err
	}
	defer closeSink()

	emitter := analytics.NewEmitter(sink, cfg.AnalyticsBuffer, log)
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := emitter.Close(drainCtx); err != nil {
			log.Warn("analytics did not drain", zap.Error(err))
		}
	}()

	// Reasoning engine
	llmClient, err := llm.NewClient(ctx, llm.Provider(cfg.LLMProvider), cfg.LLMAPIKey())
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	reasoner := assistant.New(llmClient, assistant.Config{
		Model:     cfg.LLMModel,
		MaxTokens: cfg.LLMMaxTokens,
		Timeout:   cfg.ReasoningTimeout,
	}, assistant.WithLogger(log))

	// Services
	conversationSvc := service.NewConversationService(convStore, emitter, log)
	messageSvc := service.NewMessageService(convStore, cat, reasoner, emitter, cfg.HistoryLimit, log)
	productSvc := service.NewProductService(cat, reasoner, log)

	checks := map[string]handler.Pinger{"store": convStore}
	if natsClient != nil {
		checks["nats"] = natsClient
	}

	router := handler.NewRouter(handler.RouterConfig{
		Health:            handler.NewHealthHandler(checks),
		Chat:              handler.NewChatHandler(gateway.New(conversationSvc, messageSvc, log), cfg.AllowedOrigins, log),
		Products:          handler.NewProductHandler(productSvc, log),
		Conversations:     handler.NewConversationHandler(conversationSvc, log),
		AllowedOrigins:    cfg.AllowedOrigins,
		JWTSecret:         cfg.JWTSecret,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Logger:            log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// openStorage builds the conversation store and catalog for the configured
// backend. The SQLite store is returned separately so it can double as an
// analytics sink.
func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.ConversationStore, catalog.Accessor, *store.SQLiteStore, error) {
	var seed []model.Product
	if cfg.CatalogFile != "" {
		products, err := catalog.LoadFile(cfg.CatalogFile)
		if err != nil {
			return nil, nil, nil, err
		}
		seed = products
		log.Info("catalog file loaded", zap.String("path", cfg.CatalogFile), zap.Int("products", len(products)))
	}

	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemoryStore(), catalog.NewMemoryCatalog(seed...), nil, nil

	case "redis":
		st, err := store.NewRedisStore(cfg.RedisURL, cfg.RedisTTL)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, catalog.NewMemoryCatalog(seed...), nil, nil

	case "sqlite":
		st, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		cat, err := catalog.NewSQLiteCatalog(st.DB())
		if err != nil {
			st.Close()
			return nil, nil, nil, err
		}
		if len(seed) > 0 {
			if _, err := cat.Upsert(ctx, seed); err != nil {
				st.Close()
				return nil, nil, nil, err
			}
		}
		return st, cat, st, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// analyticsSink picks where analytics events go. The returned func releases
// anything the sink opened itself.
func analyticsSink(ctx context.Context, cfg *config.Config, sqliteStore *store.SQLiteStore, nc *natsclient.Client, log *logger.Logger) (analytics.Sink, func(), error) {
	switch cfg.AnalyticsSink {
	case "log":
		return analytics.NewLogSink(log), func() {}, nil

	case "sqlite":
		if sqliteStore != nil {
			return sqliteStore, func() {}, nil
		}
		st, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil

	case "nats":
		streams := natsclient.NewStreamManager(nc)
		if err := streams.EnsureStream(ctx); err != nil {
			return nil, nil, err
		}
		return streams, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown analytics sink %q", cfg.AnalyticsSink)
	}
}
