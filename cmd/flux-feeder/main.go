package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gopartyparrot/solana-flux-aggregator/pkg/api"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/chain"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/config"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/logging"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/metrics"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/node"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/notify"
	"github.com/gopartyparrot/solana-flux-aggregator/pkg/version"

	// Import sources to register them
	_ "github.com/gopartyparrot/solana-flux-aggregator/pkg/feeds/sources"
)

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	envFile    = flag.String("env", "", "Optional .env file with credentials")
	showVer    = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("flux-feeder version %s\n", version.Version)
		os.Exit(0)
	}

	// Credentials (relay keys, webhook URLs) come from the environment;
	// the config file references them via ${VAR} expansion.
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
			os.Exit(1)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting flux-feeder", "version", version.Version)

	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	var notifier notify.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout.ToDuration(), logger)
	} else {
		notifier = notify.NewNop(logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	reader := chain.NewRPCReader(cfg.Chain.RPCURL, cfg.Chain.WSURL, logger)
	if err := reader.Start(ctx); err != nil {
		logger.Error("Failed to connect to chain", "error", err)
		os.Exit(1)
	}

	txClient := chain.NewTxBridge(cfg.Chain.TxBridgeURL, logger)

	n := node.New(cfg, reader, txClient, notifier, logger)

	errChan := make(chan error, 2)
	go func() {
		errChan <- n.Run(ctx)
	}()

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API.Addr, n, logger)
		go func() {
			errChan <- apiServer.Start()
		}()
	}

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.Error("Component failed", "error", err)
			cancel()
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down gracefully...")
	if apiServer != nil {
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Error("API server shutdown failed", "error", err)
		}
	}
	logger.Info("Shutdown complete")
}
