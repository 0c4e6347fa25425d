// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/api"
	"github.com/rovshanmuradov/launch-sniper/internal/blockchain/solbc"
	rpcpool "github.com/rovshanmuradov/launch-sniper/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/launch-sniper/internal/config"
	"github.com/rovshanmuradov/launch-sniper/internal/dex/dbc"
	"github.com/rovshanmuradov/launch-sniper/internal/jito"
	"github.com/rovshanmuradov/launch-sniper/internal/license"
	"github.com/rovshanmuradov/launch-sniper/internal/metadata"
	"github.com/rovshanmuradov/launch-sniper/internal/metrics"
	"github.com/rovshanmuradov/launch-sniper/internal/notify"
	"github.com/rovshanmuradov/launch-sniper/internal/reputation"
	"github.com/rovshanmuradov/launch-sniper/internal/scheduler"
	"github.com/rovshanmuradov/launch-sniper/internal/sniping"
	"github.com/rovshanmuradov/launch-sniper/internal/watcher"
)

const licenseHeartbeat = time.Hour

type Runner struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewRunner creates a runner for cfg.
func NewRunner(cfg *config.Config, logger *zap.Logger) *Runner {
	return &Runner{cfg: cfg, logger: logger}
}

// Run builds every component, serves until ctx is cancelled and then shuts
// everything down.
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.cfg
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.validateLicense(ctx, cancel); err != nil {
		return fmt.Errorf("license validation failed: %w", err)
	}

	pool, err := rpcpool.NewPool(cfg.RPCList, rpcpool.Options{
		Attempts: cfg.Retries,
		Delay:    config.Millis(cfg.RPCDelay),
		Timeout:  config.Millis(cfg.RPCTimeout),
	}, r.logger)
	if err != nil {
		return err
	}
	chain := solbc.NewClient(pool, cfg.WebSocketURL, r.logger)
	if slot, err := chain.Slot(ctx); err != nil {
		r.logger.Warn("RPC health check failed", zap.Error(err))
	} else {
		r.logger.Info("Connected to RPC", zap.Uint64("slot", slot), zap.Int("nodes", len(cfg.RPCList)))
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promRegistry)

	pricer, err := r.newPricer(chain)
	if err != nil {
		return err
	}

	relay := jito.NewClient(jito.Config{
		BaseURL:     cfg.BlockEngineURL,
		Timeout:     config.Millis(cfg.CallTimeout),
		MirrorToRPC: cfg.MirrorToRPC,
	}, chain, chain, r.logger)

	fetcher := metadata.NewHTTPFetcher(
		&http.Client{Timeout: config.Millis(cfg.MetadataTimeout)},
		uint(cfg.MetadataRetries),
		config.Millis(cfg.MetadataRetryGap),
		r.logger)
	resolver := metadata.NewResolver(fetcher, config.Millis(cfg.MetadataTimeout), r.logger)

	notifier, err := r.newNotifier()
	if err != nil {
		return err
	}

	var rep sniping.Reputation
	if cfg.ReputationAPIKey != "" {
		rep = reputation.NewClient(reputation.Config{
			BaseURL:  cfg.ReputationURL,
			APIKey:   cfg.ReputationAPIKey,
			Timeout:  config.Millis(cfg.ReputationTimeout),
			Attempts: uint(cfg.Retries),
		}, r.logger)
	} else {
		r.logger.Warn("Reputation API key not set, gated operators will be skipped")
	}

	registry := watcher.NewRegistry()
	engine := sniping.NewEngine(sniping.Deps{
		Registry:   registry,
		Chain:      chain,
		Resolver:   resolver,
		Reputation: rep,
		Pricer:     pricer,
		Submitter:  relay,
		Notifier:   notifier,
		Metrics:    m,
	}, sniping.Config{
		Workers:           cfg.Workers,
		LaunchMarker:      cfg.LaunchMarker,
		TestMarker:        cfg.TestMarker,
		Gateways:          cfg.Gateways,
		DefaultMinScore:   cfg.MinScore,
		CallTimeout:       config.Millis(cfg.CallTimeout),
		BalanceAttempts:   uint(cfg.BalanceRetries),
		BalanceRetryDelay: config.Millis(cfg.BalanceRetryDelay),
		DefaultSlippage:   cfg.DefaultSlippage,
	}, r.logger)

	deployer := solana.MustPublicKeyFromBase58(cfg.Deployer)
	events, err := chain.SubscribeLogs(ctx, deployer, cfg.EventBuffer)
	if err != nil {
		return fmt.Errorf("subscribe to launches: %w", err)
	}

	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		engine.Run(ctx, events)
	}()
	r.logger.Info("Watching launches",
		zap.String("deployer", deployer.String()),
		zap.Int("workers", cfg.Workers))

	delayed := r.newLoop("delayed-sales", config.Millis(cfg.SaleInterval), engine.DelayedTick, m)
	threshold := r.newLoop("threshold-sales", config.Millis(cfg.ThresholdInterval), engine.ThresholdTick, m)
	delayed.Start(ctx)
	threshold.Start(ctx)

	handler := api.NewHandler(engine, api.Defaults{MinScore: cfg.MinScore, Tip: cfg.DefaultTip}, r.logger.Named("api"))
	server := api.NewServer(cfg.ListenAddr, api.NewRouter(handler, promRegistry, r.logger.Named("api")), r.logger)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	shutdown := NewShutdownHandler(r.logger, 30*time.Second)
	shutdown.AddFunc("pipeline", func() error { <-pipelineDone; return nil })
	shutdown.AddFunc("delayed-sales", func() error { delayed.Stop(); return nil })
	shutdown.AddFunc("threshold-sales", func() error { threshold.Stop(); return nil })
	shutdown.AddFunc("api", func() error {
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		return server.Shutdown(sctx)
	})

	select {
	case <-ctx.Done():
		r.logger.Info("Shutdown requested")
	case err = <-serverErr:
		if err != nil {
			r.logger.Error("HTTP server failed", zap.Error(err))
		}
		cancel()
	}

	stats := registry.Stats()
	r.logger.Info("Registry state at shutdown",
		zap.Int("operators", stats.Operators),
		zap.Int("active", stats.Active),
		zap.Int("pending_delayed", stats.DelayedSales),
		zap.Int("pending_threshold", stats.ThresholdSales))

	return errors.Join(err, shutdown.Shutdown(context.Background()))
}

func (r *Runner) newPricer(chain *solbc.Client) (*dbc.Pricer, error) {
	cfg := r.cfg
	pcfg := dbc.Config{
		ComputeUnitLimit:   cfg.ComputeUnitLimit,
		ComputeUnitPrice:   cfg.ComputeUnitPrice,
		MaxFeePeriods:      cfg.MaxFeePeriods,
		MinReductionFactor: cfg.MinReductionFactor,
		PlatformFeeBps:     cfg.PlatformFeeBps,
	}
	if cfg.PlatformFeeWallet != "" {
		recipient, err := solana.PublicKeyFromBase58(cfg.PlatformFeeWallet)
		if err != nil {
			return nil, fmt.Errorf("platform fee wallet: %w", err)
		}
		pcfg.FeeRecipient = recipient
	}
	return dbc.NewPricer(chain, pcfg, r.logger), nil
}

func (r *Runner) newNotifier() (notify.Notifier, error) {
	cfg := r.cfg
	notifiers := notify.Multi{
		notify.NewLog(r.logger),
		notify.NewHTTPNotifier(cfg.NotifyURL, config.Millis(cfg.NotifyTimeout)),
	}
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken, config.Millis(cfg.NotifyTimeout))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		notifiers = append(notifiers, tg)
	}
	return notifiers, nil
}

func (r *Runner) newLoop(name string, interval time.Duration, task scheduler.Task, m *metrics.Metrics) *scheduler.Recurring {
	return scheduler.NewRecurring(name, interval, task, r.logger,
		scheduler.WithTimeout(time.Minute),
		scheduler.WithSkipHook(func() { m.TickSkipped(name) }),
	)
}

// validateLicense checks the license when one is configured and keeps a
// heartbeat running; an expired license stops the runner.
func (r *Runner) validateLicense(ctx context.Context, stop context.CancelFunc) error {
	if r.cfg.License == "" {
		r.logger.Info("No license configured, running unlicensed")
		return nil
	}

	validator := license.NewKeygenValidator(r.cfg.KeygenAccount, r.cfg.KeygenToken, r.cfg.KeygenProduct, r.logger)
	if err := validator.ValidateLicense(ctx, r.cfg.License); err != nil {
		return err
	}

	go validator.Heartbeat(ctx, r.cfg.License, licenseHeartbeat, func(err error) {
		if errors.Is(err, license.ErrExpired) {
			stop()
		}
	})
	return nil
}
