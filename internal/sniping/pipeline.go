// internal/sniping/pipeline.go
package sniping

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/dex"
	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/metadata"
	"github.com/rovshanmuradov/launch-sniper/internal/metrics"
	"github.com/rovshanmuradov/launch-sniper/internal/watcher"
)

// Run consumes log events with a pool of workers until events is closed or
// ctx is done.
func (e *Engine) Run(ctx context.Context, events <-chan domain.LogEvent) {
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go e.worker(ctx, &wg, events)
	}
	wg.Wait()
	e.logger.Info("Launch pipeline stopped")
}

func (e *Engine) worker(ctx context.Context, wg *sync.WaitGroup, events <-chan domain.LogEvent) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := e.HandleLog(ctx, ev); err != nil {
				e.logger.Warn("Launch event failed",
					zap.String("signature", ev.Signature.String()),
					zap.Error(err))
			}
		}
	}
}

// IsLaunch reports whether the logs carry the pool creation marker.
func (e *Engine) IsLaunch(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, e.cfg.LaunchMarker) {
			return true
		}
	}
	return false
}

// IsTestToken reports whether a token is a reserved test launch.
func (e *Engine) IsTestToken(name, symbol string) bool {
	marker := strings.ToLower(e.cfg.TestMarker)
	return strings.ToLower(strings.TrimSpace(name)) == marker ||
		strings.ToLower(strings.TrimSpace(symbol)) == marker
}

// HandleLog runs one log event through the pipeline. Only terminal failures
// are returned; soft skips return nil.
func (e *Engine) HandleLog(ctx context.Context, ev domain.LogEvent) error {
	if ev.Failed || !e.IsLaunch(ev.Logs) {
		return nil
	}

	decodeCtx, cancel := e.callCtx(ctx)
	launch, err := e.chain.DecodeLaunch(decodeCtx, ev.Signature, ev.Slot)
	cancel()
	if err != nil {
		return fmt.Errorf("decode launch: %w", err)
	}
	e.metrics.Launch()

	return e.HandleLaunch(ctx, launch)
}

// HandleLaunch processes a decoded launch.
func (e *Engine) HandleLaunch(ctx context.Context, launch *domain.LaunchEvent) error {
	logger := e.logger.With(
		zap.String("mint", launch.Mint.String()),
		zap.String("symbol", launch.Symbol))

	if e.IsTestToken(launch.Name, launch.Symbol) {
		e.metrics.Skip(metrics.SkipTestToken)
		logger.Debug("Skipping test token")
		return nil
	}

	e.registry.SetPool(watcher.PoolRef{Mint: launch.Mint, Pool: launch.Pool, Ticker: launch.Symbol})

	identity, err := e.resolver.Resolve(ctx, metadata.Locators(launch.URI, e.cfg.Gateways))
	if err != nil {
		e.metrics.Skip(metrics.SkipNoIdentity)
		logger.Info("Creator identity unresolved", zap.String("uri", launch.URI), zap.Error(err))
		return nil
	}
	logger = logger.With(zap.String("creator", identity))

	operators := e.registry.MatchingOperators(identity)
	if len(operators) == 0 {
		e.metrics.Skip(metrics.SkipNoOperators)
		logger.Debug("No operator watches creator")
		return nil
	}
	logger.Info("Launch matched", zap.Int("operators", len(operators)))

	score := &lazyScore{}
	var wg sync.WaitGroup
	for _, op := range operators {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.processOperator(ctx, launch, identity, op, score)
		}()
	}
	wg.Wait()
	return nil
}

// lazyScore fetches the creator score at most once per launch.
type lazyScore struct {
	once  sync.Once
	score float64
	err   error
}

func (l *lazyScore) get(ctx context.Context, e *Engine, identity string) (float64, error) {
	l.once.Do(func() {
		if e.reputation == nil {
			l.err = errors.New("reputation service is not configured")
			return
		}
		cctx, cancel := e.callCtx(ctx)
		defer cancel()
		l.score, l.err = e.reputation.Score(cctx, identity)
	})
	return l.score, l.err
}

func (e *Engine) processOperator(ctx context.Context, launch *domain.LaunchEvent, identity string, op *watcher.Operator, score *lazyScore) {
	logger := e.logger.With(
		zap.String("operator", op.Key),
		zap.String("mint", launch.Mint.String()))

	if op.ReputationGate {
		s, err := score.get(ctx, e, identity)
		if err != nil {
			e.metrics.Skip(metrics.SkipReputation)
			logger.Warn("Reputation unavailable, skipping operator", zap.Error(err))
			return
		}
		if s < op.MinScore {
			e.metrics.Skip(metrics.SkipReputation)
			logger.Info("Creator score below minimum",
				zap.Float64("score", s),
				zap.Float64("min_score", op.MinScore))
			return
		}
	}

	start := time.Now()
	quoteCtx, cancel := e.callCtx(ctx)
	quote, err := e.pricer.Quote(quoteCtx, dex.QuoteRequest{
		Owner:       op.Wallet.PublicKey,
		Mint:        launch.Mint,
		Pool:        launch.Pool,
		Direction:   dex.Buy,
		AmountIn:    dex.SolToLamports(op.BuyAmount),
		SlippageBps: op.SlippageBps(),
	})
	cancel()
	if errors.Is(err, dex.ErrQuoteRefused) {
		e.metrics.Skip(metrics.SkipRefused)
		logger.Info("Buy quote refused")
		return
	}
	if err != nil {
		e.metrics.Buy(false)
		logger.Error("Buy quote failed", zap.Error(err))
		return
	}

	submitCtx, cancel := e.callCtx(ctx)
	sig, err := e.submitter.Submit(submitCtx, op.Wallet, quote.Instructions, dex.SolToLamports(op.Tip))
	cancel()
	e.metrics.TrackSubmit(start)
	if err != nil {
		e.metrics.Buy(false)
		logger.Error("Buy submission failed", zap.Error(err))
		return
	}
	e.metrics.Buy(true)
	logger.Info("Buy submitted",
		zap.String("signature", sig.String()),
		zap.Float64("amount_sol", op.BuyAmount),
		zap.Float64("entry_price", quote.Price))

	e.notify(ctx, domain.Notification{
		ChannelID: op.ChannelID,
		Message:   fmt.Sprintf("✅ Bought $%s for %g SOL\nhttps://solscan.io/tx/%s", launch.Symbol, op.BuyAmount, sig),
		Event:     domain.NotifyBuy,
		Mint:      launch.Mint.String(),
		Amount:    op.BuyAmount,
	})

	switch s := op.Strategy.(type) {
	case watcher.Delayed:
		delay := s.After
		if s.ScoreScaled {
			if sc, err := score.get(ctx, e, identity); err == nil {
				delay = s.SellDelay(sc, op.MinScore)
			}
		}
		sale := e.registry.ScheduleDelayedSale(op.Key, launch.Mint, delay)
		logger.Info("Delayed sale scheduled", zap.Time("due", sale.Due))

	case watcher.Threshold:
		tp, sl := ThresholdBounds(quote.Price, s.TakeProfitPct, s.StopLossPct)
		e.registry.ScheduleThresholdSale(watcher.ThresholdSale{
			Operator:   op.Key,
			Mint:       launch.Mint,
			Entry:      quote.Price,
			TakeProfit: tp,
			StopLoss:   sl,
		})
		logger.Info("Threshold sale scheduled",
			zap.Float64("entry", quote.Price),
			zap.Float64("take_profit", tp),
			zap.Float64("stop_loss", sl))
	}
}

var hundred = decimal.NewFromInt(100)

// ThresholdBounds turns percentage bounds into absolute prices around entry.
func ThresholdBounds(entry, takeProfitPct, stopLossPct float64) (takeProfit, stopLoss float64) {
	e := decimal.NewFromFloat(entry)
	tp := e.Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(takeProfitPct).Div(hundred)))
	sl := e.Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(stopLossPct).Div(hundred)))
	takeProfit, _ = tp.Float64()
	stopLoss, _ = sl.Float64()
	return takeProfit, stopLoss
}
