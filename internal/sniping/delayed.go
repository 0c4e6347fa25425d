// internal/sniping/delayed.go
package sniping

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/watcher"
)

// DelayedTick liquidates every fixed-delay sale that is due. Sales whose
// submission fails stay scheduled for the next tick.
func (e *Engine) DelayedTick(ctx context.Context) {
	due := e.registry.DueDelayedSales(e.now())
	if len(due) == 0 {
		return
	}
	e.logger.Debug("Processing due sales", zap.Int("count", len(due)))

	var wg sync.WaitGroup
	for _, sale := range due {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.liquidateDelayed(ctx, sale)
		}()
	}
	wg.Wait()
}

func (e *Engine) liquidateDelayed(ctx context.Context, sale watcher.ScheduledSale) {
	logger := e.logger.With(
		zap.String("operator", sale.Operator),
		zap.String("mint", sale.Mint.String()))

	op, ok := e.registry.Operator(sale.Operator)
	if !ok {
		return
	}

	release, ok := e.claimSale(op.Wallet.PublicKey, sale.Mint)
	if !ok {
		logger.Debug("Position is being sold elsewhere, retrying next tick")
		return
	}
	defer release()
	if !e.registry.HasDelayedSale(sale.Operator, sale.Mint) {
		return
	}

	_, err := e.sell(ctx, orderFor(op, sale.Mint, TriggerDelayed))
	switch {
	case err == nil:
		e.registry.RemoveDelayedSale(sale.Operator, sale.Mint)
	case errors.Is(err, ErrNoPosition):
		logger.Info("Position already closed, dropping delayed sale")
		e.registry.RemoveDelayedSale(sale.Operator, sale.Mint)
	default:
		logger.Warn("Delayed sale failed, will retry", zap.Error(err))
	}
}
