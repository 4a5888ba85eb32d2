// Package app assembles the process: configuration, trust policy, token
// broker, request gateway, schema cache and the MCP tool surface.
package app

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"csmcp/internal/infra/broker"
	"csmcp/internal/infra/config"
	"csmcp/internal/infra/gateway"
	"csmcp/internal/infra/metadata"
	"csmcp/internal/infra/telemetry"
	"csmcp/internal/infra/trust"
	"csmcp/internal/tools"
)

const serverName = "csmcp"

// Version is stamped at build time via -ldflags.
var Version = "dev"

type App struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		logger: logger.Named("app"),
	}
}

// Serve runs the MCP server over stdio until the context is cancelled.
// A failure to obtain the initial credential is fatal; the process does
// not start degraded.
func (a *App) Serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	policy, err := trust.ResolvePolicy(cfg)
	if err != nil {
		return err
	}

	metrics := telemetry.NewPrometheusMetrics(nil)
	health := telemetry.NewHealthTracker()

	tokens := broker.New(cfg, policy, metrics, a.logger)
	tokens.SetHealth(health)
	if err := tokens.Initialize(ctx); err != nil {
		return err
	}

	gw := gateway.New(cfg, policy.Main, tokens, metrics, a.logger)
	cache := metadata.New(gw, metrics, a.logger)
	handler := tools.NewHandler(gw, cache, a.logger,
		tools.WithVectorSearchTuning(cfg.MaxChunks, cfg.RelevanceScore))

	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: Version,
	}, &mcp.ServerOptions{
		HasTools: true,
	})
	handler.Register(server)

	go tokens.Run(ctx)
	if cfg.MetricsPort > 0 {
		go func() {
			if err := telemetry.StartMetricsServer(ctx, cfg.MetricsPort, health, a.logger); err != nil {
				a.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	a.logger.Info("server starting (stdio transport)",
		zap.String("object_store", cfg.ObjectStore),
		zap.String("topology", string(cfg.Topology)),
	)
	return server.Run(ctx, &mcp.StdioTransport{})
}

// ValidateConfig loads and validates the environment configuration
// without touching the network.
func (a *App) ValidateConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := trust.ResolvePolicy(cfg); err != nil {
		return err
	}

	a.logger.Info("configuration validated",
		zap.String("server_url", cfg.ServerURL),
		zap.String("object_store", cfg.ObjectStore),
		zap.String("topology", string(cfg.Topology)),
	)
	return nil
}
