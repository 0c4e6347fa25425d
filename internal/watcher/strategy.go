package watcher

import (
	"errors"
	"fmt"
	"time"
)

// Wire tags accepted by the request surface.
const (
	ModeBuyAndForget    = "buy_and_forget"
	ModeSellAfterSecond = "sell_after_seconds"
	ModeTakeProfitStop  = "tp_sl"
)

const (
	DefaultSellDelay     = 15 * time.Second
	DefaultTakeProfitPct = 10.0
	DefaultStopLossPct   = 10.0
)

var ErrUnknownStrategy = errors.New("unknown sell mode")

// Strategy is the liquidation strategy of an operator. It is one of
// Immediate, Delayed or Threshold.
type Strategy interface {
	Kind() string
	isStrategy()
}

// Immediate buys and keeps the position.
type Immediate struct{}

// Delayed sells the whole position After the buy.
type Delayed struct {
	After time.Duration
	// ScoreScaled stretches After by the creator reputation, see SellDelay.
	ScoreScaled bool
}

// Threshold sells once the price leaves the [entry-sl%, entry+tp%] band.
type Threshold struct {
	TakeProfitPct float64
	StopLossPct   float64
}

func (Immediate) Kind() string { return ModeBuyAndForget }
func (Delayed) Kind() string   { return ModeSellAfterSecond }
func (Threshold) Kind() string { return ModeTakeProfitStop }

func (Immediate) isStrategy() {}
func (Delayed) isStrategy()   {}
func (Threshold) isStrategy() {}

// StrategySpec is the loosely typed strategy descriptor received from callers.
type StrategySpec struct {
	Type        string
	Seconds     *float64
	TakeProfit  *float64
	StopLoss    *float64
	ScoreScaled bool
}

// ParseStrategy decodes a descriptor into a Strategy, applying defaults for
// omitted fields.
func ParseStrategy(spec StrategySpec) (Strategy, error) {
	switch spec.Type {
	case "", ModeBuyAndForget:
		return Immediate{}, nil

	case ModeSellAfterSecond:
		after := DefaultSellDelay
		if spec.Seconds != nil {
			if *spec.Seconds < 0 {
				return nil, fmt.Errorf("seconds must not be negative: %v", *spec.Seconds)
			}
			after = time.Duration(*spec.Seconds * float64(time.Second))
		}
		return Delayed{After: after, ScoreScaled: spec.ScoreScaled}, nil

	case ModeTakeProfitStop:
		tp, sl := DefaultTakeProfitPct, DefaultStopLossPct
		if spec.TakeProfit != nil {
			tp = *spec.TakeProfit
		}
		if spec.StopLoss != nil {
			sl = *spec.StopLoss
		}
		if tp <= 0 {
			return nil, fmt.Errorf("tp must be positive: %v", tp)
		}
		if sl <= 0 || sl >= 100 {
			return nil, fmt.Errorf("sl must be within (0, 100): %v", sl)
		}
		return Threshold{TakeProfitPct: tp, StopLossPct: sl}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, spec.Type)
}

// Score-scaled delay parameters.
const (
	scoreStep      = 100.0
	scoreStepDelay = 10 * time.Second
	maxScaledDelay = 60 * time.Second
)

// SellDelay returns the effective delay for a delayed sale. When the strategy
// is score scaled every full 100 points above minScore adds ten seconds, up
// to one minute.
func (d Delayed) SellDelay(score, minScore float64) time.Duration {
	if !d.ScoreScaled || score <= minScore {
		return d.After
	}
	steps := int((score - minScore) / scoreStep)
	delay := d.After + time.Duration(steps)*scoreStepDelay
	if delay > maxScaledDelay {
		delay = maxScaledDelay
	}
	return delay
}
