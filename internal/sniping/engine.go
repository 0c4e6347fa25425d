// internal/sniping/engine.go
package sniping

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/dex"
	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/metrics"
	"github.com/rovshanmuradov/launch-sniper/internal/notify"
	"github.com/rovshanmuradov/launch-sniper/internal/wallet"
	"github.com/rovshanmuradov/launch-sniper/internal/watcher"
)

// Chain is the chain client as seen by the engine.
type Chain interface {
	DecodeLaunch(ctx context.Context, sig solana.Signature, slot uint64) (*domain.LaunchEvent, error)
	TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (amount uint64, found bool, err error)
}

// Resolver resolves the creator identity of a launch.
type Resolver interface {
	Resolve(ctx context.Context, locators []string) (string, error)
}

// Reputation scores creator identities.
type Reputation interface {
	Score(ctx context.Context, handle string) (float64, error)
}

// Submitter sends a tipped transaction through the priority relay.
type Submitter interface {
	Submit(ctx context.Context, signer *wallet.Wallet, instructions []solana.Instruction, tipLamports uint64) (solana.Signature, error)
}

// Config tunes the engine.
type Config struct {
	Workers         int
	LaunchMarker    string
	TestMarker      string
	Gateways        []string
	DefaultMinScore float64
	// CallTimeout bounds each chain, pricing and relay call.
	CallTimeout       time.Duration
	BalanceAttempts   uint
	BalanceRetryDelay time.Duration
	DefaultSlippage   float64 // percent, for manual sells of unknown operators
}

// Engine wires the registry to the external collaborators. It hosts the
// launch pipeline, the sale loops and manual liquidation.
type Engine struct {
	registry   *watcher.Registry
	chain      Chain
	resolver   Resolver
	reputation Reputation
	pricer     dex.Pricer
	submitter  Submitter
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time

	sellingMu sync.Mutex
	selling   map[position]struct{}
}

// position is a token held by a wallet.
type position struct {
	owner solana.PublicKey
	mint  solana.PublicKey
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Registry   *watcher.Registry
	Chain      Chain
	Resolver   Resolver
	Reputation Reputation
	Pricer     dex.Pricer
	Submitter  Submitter
	Notifier   notify.Notifier
	Metrics    *metrics.Metrics
}

func NewEngine(deps Deps, cfg Config, logger *zap.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
		logger.Warn("Invalid workers count in config, using 1 worker")
	}
	if cfg.LaunchMarker == "" {
		cfg.LaunchMarker = "InitializeVirtualPoolWithSplToken"
	}
	if cfg.TestMarker == "" {
		cfg.TestMarker = "test"
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.BalanceAttempts == 0 {
		cfg.BalanceAttempts = 3
	}
	if cfg.DefaultSlippage <= 0 {
		cfg.DefaultSlippage = 10
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLog(logger)
	}

	return &Engine{
		registry:   deps.Registry,
		chain:      deps.Chain,
		resolver:   deps.Resolver,
		reputation: deps.Reputation,
		pricer:     deps.Pricer,
		submitter:  deps.Submitter,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		cfg:        cfg,
		logger:     logger.Named("sniping"),
		now:        time.Now,
		selling:    make(map[position]struct{}),
	}
}

// SetClock replaces time.Now, used by tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Registry exposes the registry the engine works on.
func (e *Engine) Registry() *watcher.Registry { return e.registry }

func (e *Engine) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.CallTimeout)
}

// claimSale reserves the position for one seller. The returned release must
// be called once the sale is over.
func (e *Engine) claimSale(owner, mint solana.PublicKey) (release func(), ok bool) {
	pos := position{owner, mint}

	e.sellingMu.Lock()
	defer e.sellingMu.Unlock()
	if _, busy := e.selling[pos]; busy {
		return nil, false
	}
	e.selling[pos] = struct{}{}
	return func() {
		e.sellingMu.Lock()
		delete(e.selling, pos)
		e.sellingMu.Unlock()
	}, true
}

func (e *Engine) notify(ctx context.Context, n domain.Notification) {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("Notification failed",
			zap.Int64("channel", n.ChannelID),
			zap.String("event", string(n.Event)),
			zap.Error(err))
	}
}
