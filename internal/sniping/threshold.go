// internal/sniping/threshold.go
package sniping

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/watcher"
)

// Decide compares price with the bounds of a position. Stop loss wins when
// both bounds are crossed.
func Decide(price, takeProfit, stopLoss float64) Trigger {
	switch {
	case price <= stopLoss:
		return TriggerStopLoss
	case price >= takeProfit:
		return TriggerTakeProfit
	}
	return TriggerNone
}

// ThresholdTick prices every open take-profit / stop-loss position of an
// active operator and liquidates the ones that crossed a bound.
func (e *Engine) ThresholdTick(ctx context.Context) {
	var positions []watcher.ThresholdSale
	for _, sale := range e.registry.AllThresholdSales() {
		if e.registry.IsActive(sale.Operator) {
			positions = append(positions, sale)
		}
	}
	if len(positions) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, sale := range positions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.checkThreshold(ctx, sale)
		}()
	}
	wg.Wait()
}

func (e *Engine) checkThreshold(ctx context.Context, sale watcher.ThresholdSale) {
	logger := e.logger.With(
		zap.String("operator", sale.Operator),
		zap.String("mint", sale.Mint.String()))

	op, ok := e.registry.Operator(sale.Operator)
	if !ok {
		return
	}

	_, price, err := e.Price(ctx, sale.Mint)
	if err != nil {
		if errors.Is(err, ErrPriceUnavailable) || errors.Is(err, ErrPoolUnknown) {
			e.dropIfVanished(ctx, op, sale)
			return
		}
		logger.Warn("Price read failed", zap.Error(err))
		return
	}

	trigger := Decide(price, sale.TakeProfit, sale.StopLoss)
	if trigger == TriggerNone {
		return
	}
	logger.Info("Threshold crossed",
		zap.String("trigger", string(trigger)),
		zap.Float64("price", price),
		zap.Float64("entry", sale.Entry),
		zap.Float64("take_profit", sale.TakeProfit),
		zap.Float64("stop_loss", sale.StopLoss))

	release, ok := e.claimSale(op.Wallet.PublicKey, sale.Mint)
	if !ok {
		logger.Debug("Position is being sold elsewhere, retrying next tick")
		return
	}
	defer release()
	if !e.registry.HasThresholdSale(sale.Operator, sale.Mint) {
		return
	}

	_, err = e.sell(ctx, orderFor(op, sale.Mint, trigger))
	switch {
	case err == nil:
		e.registry.RemoveThresholdSale(sale.Operator, sale.Mint)
	case errors.Is(err, ErrNoPosition):
		logger.Info("Position already closed, dropping threshold sale")
		e.registry.RemoveThresholdSale(sale.Operator, sale.Mint)
	default:
		logger.Warn("Threshold sale failed, will retry", zap.Error(err))
	}
}

// dropIfVanished removes a position whose token account is gone.
func (e *Engine) dropIfVanished(ctx context.Context, op *watcher.Operator, sale watcher.ThresholdSale) {
	_, found, err := e.balance(ctx, op.Wallet.PublicKey, sale.Mint)
	if err != nil || found {
		return
	}
	e.logger.Info("Position vanished, dropping threshold sale",
		zap.String("operator", sale.Operator),
		zap.String("mint", sale.Mint.String()))
	e.registry.RemoveThresholdSale(sale.Operator, sale.Mint)
}
