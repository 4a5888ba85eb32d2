package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"csmcp/internal/app"
)

func main() {
	logger, err := buildLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

// buildLogger writes structured logs to stderr, keeping stdout free for
// the MCP stdio transport. LOG_LEVEL selects the minimum level.
func buildLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(raw)); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(level)
		}
	}
	return cfg.Build()
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "csmcp",
		Short: "MCP server exposing an enterprise content repository",
	}

	root.AddCommand(
		newServeCmd(logger),
		newValidateCmd(logger),
	)

	return root
}

func newServeCmd(logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			return app.New(logger).Serve(ctx)
		},
	}
}

func newValidateCmd(logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the environment configuration without connecting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.New(logger).ValidateConfig()
		},
	}
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
