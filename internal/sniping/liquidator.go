// internal/sniping/liquidator.go
package sniping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/dex"
	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/wallet"
	"github.com/rovshanmuradov/launch-sniper/internal/watcher"
)

var (
	// ErrNoPosition is returned when the operator holds none of the token.
	ErrNoPosition = errors.New("no token balance")
	// ErrPoolUnknown is returned for mints whose pool was never observed.
	ErrPoolUnknown = errors.New("pool not found for mint")
	// ErrPriceUnavailable is returned when the pool cannot be priced.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrSaleInProgress is returned while another sale of the same position
	// is running.
	ErrSaleInProgress = errors.New("sale already in progress")
)

// Trigger names what caused a sale.
type Trigger string

const (
	TriggerNone       Trigger = ""
	TriggerDelayed    Trigger = "delayed"
	TriggerTakeProfit Trigger = "take_profit"
	TriggerStopLoss   Trigger = "stop_loss"
	TriggerManual     Trigger = "manual"
)

// SaleOrder is a request to liquidate the full balance of one token.
type SaleOrder struct {
	OperatorKey string
	Wallet      *wallet.Wallet
	ChannelID   int64
	Mint        solana.PublicKey
	Tip         float64 // SOL
	SlippageBps uint16
	Trigger     Trigger
}

func orderFor(op *watcher.Operator, mint solana.PublicKey, trigger Trigger) SaleOrder {
	return SaleOrder{
		OperatorKey: op.Key,
		Wallet:      op.Wallet,
		ChannelID:   op.ChannelID,
		Mint:        mint,
		Tip:         op.Tip,
		SlippageBps: op.SlippageBps(),
		Trigger:     trigger,
	}
}

// balance reads the token balance, retrying transient failures.
func (e *Engine) balance(ctx context.Context, owner, mint solana.PublicKey) (uint64, bool, error) {
	type reading struct {
		amount uint64
		found  bool
	}
	operation := func() (reading, error) {
		cctx, cancel := e.callCtx(ctx)
		defer cancel()
		amount, found, err := e.chain.TokenBalance(cctx, owner, mint)
		return reading{amount, found}, err
	}

	r, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(e.cfg.BalanceRetryDelay)),
		backoff.WithMaxTries(e.cfg.BalanceAttempts),
		backoff.WithNotify(func(err error, d time.Duration) {
			e.logger.Debug("Retrying balance read",
				zap.String("owner", owner.String()),
				zap.String("mint", mint.String()),
				zap.Duration("backoff", d),
				zap.Error(err))
		}),
	)
	if err != nil {
		return 0, false, fmt.Errorf("balance of %s: %w", mint, err)
	}
	return r.amount, r.found && r.amount > 0, nil
}

// Sell liquidates the whole balance described by order. ErrNoPosition is
// returned, without trading, when nothing is held, and ErrSaleInProgress when
// the position is already being sold.
func (e *Engine) Sell(ctx context.Context, order SaleOrder) (solana.Signature, error) {
	release, ok := e.claimSale(order.Wallet.PublicKey, order.Mint)
	if !ok {
		return solana.Signature{}, ErrSaleInProgress
	}
	defer release()
	return e.sell(ctx, order)
}

// sell expects the caller to hold the position claim.
func (e *Engine) sell(ctx context.Context, order SaleOrder) (solana.Signature, error) {
	logger := e.logger.With(
		zap.String("operator", order.OperatorKey),
		zap.String("mint", order.Mint.String()),
		zap.String("trigger", string(order.Trigger)))

	ref, ok := e.registry.PoolOf(order.Mint)
	if !ok {
		return solana.Signature{}, ErrPoolUnknown
	}

	amount, found, err := e.balance(ctx, order.Wallet.PublicKey, order.Mint)
	if err != nil {
		return solana.Signature{}, err
	}
	if !found {
		return solana.Signature{}, ErrNoPosition
	}

	start := time.Now()
	quoteCtx, cancel := e.callCtx(ctx)
	quote, err := e.pricer.Quote(quoteCtx, dex.QuoteRequest{
		Owner:       order.Wallet.PublicKey,
		Mint:        order.Mint,
		Pool:        ref.Pool,
		Direction:   dex.Sell,
		AmountIn:    amount,
		SlippageBps: order.SlippageBps,
	})
	cancel()
	if err != nil {
		e.metrics.Sale(string(order.Trigger), false)
		return solana.Signature{}, fmt.Errorf("sell quote: %w", err)
	}

	submitCtx, cancel := e.callCtx(ctx)
	sig, err := e.submitter.Submit(submitCtx, order.Wallet, quote.Instructions, dex.SolToLamports(order.Tip))
	cancel()
	e.metrics.TrackSubmit(start)
	if err != nil {
		e.metrics.Sale(string(order.Trigger), false)
		return solana.Signature{}, fmt.Errorf("submit sell: %w", err)
	}
	e.metrics.Sale(string(order.Trigger), true)

	received := dex.LamportsToSol(quote.ExpectedOut)
	logger.Info("Sell submitted",
		zap.String("signature", sig.String()),
		zap.Uint64("amount", amount),
		zap.Float64("expected_sol", received))

	e.notify(ctx, domain.Notification{
		ChannelID: order.ChannelID,
		Message:   saleMessage(order.Trigger, ref.Ticker, received, sig),
		Event:     domain.NotifySale,
		Mint:      order.Mint.String(),
		Amount:    received,
	})
	return sig, nil
}

func saleMessage(trigger Trigger, ticker string, sol float64, sig solana.Signature) string {
	var reason string
	switch trigger {
	case TriggerTakeProfit:
		reason = " (take profit)"
	case TriggerStopLoss:
		reason = " (stop loss)"
	case TriggerDelayed:
		reason = " (timer)"
	}
	return fmt.Sprintf("💰 Sold $%s for ~%.4f SOL%s\nhttps://solscan.io/tx/%s", ticker, sol, reason, sig)
}

// SellNow liquidates a position on operator request. Pending scheduled sales
// for the pair are dropped once the sell is submitted, before the position is
// released, so a sale loop cannot sell it a second time.
func (e *Engine) SellNow(ctx context.Context, w *wallet.Wallet, mint solana.PublicKey, tip float64) (solana.Signature, error) {
	key := w.PublicKey.String()
	order := SaleOrder{
		OperatorKey: key,
		Wallet:      w,
		Mint:        mint,
		Tip:         tip,
		SlippageBps: uint16(e.cfg.DefaultSlippage * 100),
		Trigger:     TriggerManual,
	}
	if op, ok := e.registry.Operator(key); ok {
		order.ChannelID = op.ChannelID
		order.SlippageBps = op.SlippageBps()
	}

	release, ok := e.claimSale(w.PublicKey, mint)
	if !ok {
		return solana.Signature{}, ErrSaleInProgress
	}
	defer release()

	sig, err := e.sell(ctx, order)
	if err != nil {
		return sig, err
	}
	e.registry.RemoveDelayedSale(key, mint)
	e.registry.RemoveThresholdSale(key, mint)
	return sig, nil
}

// Price returns the cached pool of mint and its current spot price.
func (e *Engine) Price(ctx context.Context, mint solana.PublicKey) (watcher.PoolRef, float64, error) {
	ref, ok := e.registry.PoolOf(mint)
	if !ok {
		return watcher.PoolRef{}, 0, ErrPoolUnknown
	}

	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	price, ok, err := e.pricer.SpotPrice(cctx, ref.Pool)
	if err != nil {
		return ref, 0, fmt.Errorf("spot price: %w", err)
	}
	if !ok {
		return ref, 0, ErrPriceUnavailable
	}
	return ref, price, nil
}

// Watch registers or replaces an operator.
func (e *Engine) Watch(op *watcher.Operator) {
	e.registry.Register(op)
	e.logger.Info("Operator registered",
		zap.String("operator", op.Key),
		zap.String("strategy", op.Strategy.Kind()),
		zap.Strings("targets", op.Targets),
		zap.Float64("buy_amount", op.BuyAmount))
}

// Stop deactivates an operator and tells its channel. It reports whether the
// operator was known.
func (e *Engine) Stop(ctx context.Context, key string) bool {
	op, ok := e.registry.Operator(key)
	if !e.registry.Deactivate(key) {
		return false
	}
	e.logger.Info("Operator stopped", zap.String("operator", key))
	if ok {
		e.notify(ctx, domain.Notification{
			ChannelID: op.ChannelID,
			Message:   "⛔ Sniping stopped",
			Event:     domain.NotifyStop,
		})
	}
	return true
}
