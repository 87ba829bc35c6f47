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

	"github.com/xiaot623/gogo/tripagent/internal/adapter/llm"
	"github.com/xiaot623/gogo/tripagent/internal/cache"
	"github.com/xiaot623/gogo/tripagent/internal/config"
	"github.com/xiaot623/gogo/tripagent/internal/domain"
	"github.com/xiaot623/gogo/tripagent/internal/invoker"
	"github.com/xiaot623/gogo/tripagent/internal/ledger"
	"github.com/xiaot623/gogo/tripagent/internal/logging"
	"github.com/xiaot623/gogo/tripagent/internal/metrics"
	"github.com/xiaot623/gogo/tripagent/internal/policy"
	"github.com/xiaot623/gogo/tripagent/internal/repository"
	"github.com/xiaot623/gogo/tripagent/internal/service"
	"github.com/xiaot623/gogo/tripagent/internal/tools"
	handler "github.com/xiaot623/gogo/tripagent/internal/transport/http"
	"github.com/xiaot623/gogo/tripagent/internal/transport/rpc"
	"github.com/xiaot623/gogo/tripagent/internal/transport/ws"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, WebSocket and RPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting tripagent",
		zap.String("mode", cfg.Mode),
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("rpc_port", cfg.RPCPort),
		zap.String("database", cfg.DatabaseURL))

	shutdownTracing, err := metrics.InitTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	collector := metrics.NewCollector()

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer db.Close()

	l := ledger.New(db, cache.NewSessionCache(cfg.SessionCacheTTL), collector, logger)

	// Initialize LLM client
	llmClient := llm.NewLLMClient(cfg.MockMode(), llm.Config{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
	}, logger)

	registry, err := buildRegistry(cfg, llmClient, logger)
	if err != nil {
		return err
	}

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy, cfg.PolicyDenyTools)
	if err != nil {
		return fmt.Errorf("initialize policy engine: %w", err)
	}

	inv := invoker.New(registry, l, logger,
		invoker.WithPolicy(policyEngine),
		invoker.WithMetrics(collector))

	// Initialize service
	svc := service.New(l, inv, llmClient, service.ConfigFrom(cfg), logger, service.WithMetrics(collector))

	turnTimeout := cfg.EnrichDeadline + cfg.GenerateTimeout + cfg.IntentTimeout

	hub := ws.NewHub(logger)
	go hub.Run(ctx)
	wsServer := ws.NewServer(svc, hub, ws.Options{
		PingInterval:   cfg.WSPingInterval,
		WriteTimeout:   cfg.WSWriteTimeout,
		ReadTimeout:    cfg.WSReadTimeout,
		MaxMessageSize: cfg.WSMaxMessageSize,
		TurnTimeout:    turnTimeout,
	}, logger)

	httpServer := handler.NewServer(svc, wsServer, collector, logger, handler.WithTurnTimeout(turnTimeout))

	errCh := make(chan error, 2)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		logger.Info("http server listening", zap.String("addr", addr))
		if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var rpcServer *rpc.Server
	if cfg.RPCPort > 0 {
		rpcServer, err = rpc.NewServer(svc, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := rpcServer.Start(fmt.Sprintf(":%d", cfg.RPCPort)); err != nil {
				errCh <- fmt.Errorf("rpc server: %w", err)
			}
		}()
	}

	// Wait for a signal or a server failure
	select {
	case <-ctx.Done():
	case err = <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	logger.Info("shutting down tripagent")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("failed to shutdown http server gracefully", zap.Error(shutdownErr))
	}
	if rpcServer != nil {
		if shutdownErr := rpcServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("failed to shutdown rpc server gracefully", zap.Error(shutdownErr))
		}
	}
	if shutdownErr := shutdownTracing(shutdownCtx); shutdownErr != nil {
		logger.Warn("failed to flush traces", zap.Error(shutdownErr))
	}

	logger.Info("tripagent stopped")
	return err
}

// buildRegistry registers the builtin capabilities. Outside MOCK mode the
// intent classifier is backed by the model, and a configured capability
// gateway takes over the enrichment capabilities.
func buildRegistry(cfg *config.Config, llmClient llm.LLMClient, logger *zap.Logger) (*tools.Registry, error) {
	catalog, err := tools.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}

	var classifier tools.IntentClassifier = tools.RuleClassifier{}
	if !cfg.MockMode() {
		classifier = llmClient
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, catalog, classifier); err != nil {
		return nil, err
	}

	if cfg.CapabilityURL != "" {
		remoteCfg := tools.DefaultRemoteConfig(cfg.CapabilityURL)
		remoteCfg.RPS = cfg.CapabilityRPS
		remote := tools.NewRemoteClient(remoteCfg, logger)
		for _, name := range []string{
			domain.ToolAttractionSearch,
			domain.ToolHotelSearch,
			domain.ToolWeatherLookup,
			domain.ToolMealSuggestion,
		} {
			registry.Replace(name, remote.Bind(name))
		}
		logger.Info("enrichment capabilities served remotely", zap.String("url", cfg.CapabilityURL))
	}
	return registry, nil
}
