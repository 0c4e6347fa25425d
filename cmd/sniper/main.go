// ====================================
// File: cmd/sniper/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/bot"
	"github.com/rovshanmuradov/launch-sniper/internal/config"
	"github.com/rovshanmuradov/launch-sniper/internal/utils/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to the config file, empty for env only")
	envFile := flag.String("env", ".env", "dotenv file with secrets")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithOperation("startup").Info("Starting launch sniper",
		zap.String("listen", cfg.ListenAddr),
		zap.Int("rpc_nodes", len(cfg.RPCList)))

	end := log.TrackPerformance("run")
	runErr := bot.NewRunner(cfg, log.Logger).Run(ctx)
	end()
	if runErr != nil {
		log.Error("Sniper stopped with error", zap.Error(runErr))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("Sniper stopped")
}
