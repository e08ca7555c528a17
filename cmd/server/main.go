package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gungifree/gungi-server-go/internal/config"
	"github.com/gungifree/gungi-server-go/internal/match"
	"github.com/gungifree/gungi-server-go/internal/rules"
	"github.com/gungifree/gungi-server-go/internal/server"
	"github.com/gungifree/gungi-server-go/internal/settle"
	"github.com/gungifree/gungi-server-go/internal/store"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting gungi server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Persistence collaborator: postgres when configured, in-memory
	// otherwise.
	var matchStore match.MatchStore
	if cfg.Database.Enabled {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pg.Close()
		matchStore = pg
	} else {
		matchStore = store.NewMemoryStore()
		logger.Info("using in-memory match store")
	}

	notifier := settle.NewNotifier(
		&settle.LogSink{Logger: logger},
		cfg.Settlement.RetryBaseDelay,
		cfg.Settlement.MaxRetries,
		logger,
	)
	logger.Info("settlement notifier initialized",
		zap.Duration("retry_base_delay", cfg.Settlement.RetryBaseDelay),
		zap.Uint64("max_retries", cfg.Settlement.MaxRetries),
	)

	registry := match.NewRegistry()
	manager := match.NewManager(registry, matchStore, notifier, match.Config{
		AgentTimeout:  cfg.Match.AgentTimeout,
		AutoplayDelay: cfg.Match.AutoplayDelay,
		Terminal: rules.TerminalConfig{
			WinCondition: rules.WinCondition(cfg.Match.WinCondition),
			MaxPly:       cfg.Match.MaxPly,
		},
	}, logger)
	logger.Info("match manager initialized",
		zap.Duration("agent_timeout", cfg.Match.AgentTimeout),
		zap.Int("max_ply", cfg.Match.MaxPly),
		zap.String("win_condition", cfg.Match.WinCondition),
	)

	if recovered, err := manager.Recover(ctx); err != nil {
		logger.Warn("match recovery failed", zap.Error(err))
	} else if recovered > 0 {
		logger.Info("registry repopulated", zap.Int("matches", recovered))
	}

	wsServer := server.New(cfg.Server, manager, logger)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- wsServer.Run(ctx)
	}()

	logger.Info("gungi server initialized",
		zap.String("version", version),
		zap.String("address", cfg.Server.Address),
	)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("websocket server error", zap.Error(err))
		}
	}

	logger.Info("shutting down gracefully...")
	cancel()

	select {
	case <-serverErr:
	case <-time.After(cfg.Server.ShutdownTimeout + time.Second):
	}

	logger.Info("gungi server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
