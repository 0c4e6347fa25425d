// internal/sniping/pipeline_test.go
package sniping

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/launch-sniper/internal/dex"
	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/watcher"
)

func TestHandleLog_BuyAndScheduleDelayedSale(t *testing.T) {
	h := newHarness(t)
	op := newTestOperator(t, []string{"alice"}, watcher.Delayed{After: 15 * time.Second})
	h.engine.Watch(op)

	launch := testLaunch()
	ev := testLogEvent()
	buySig := solana.Signature{9}

	h.chain.On("DecodeLaunch", mock.Anything, ev.Signature, ev.Slot).Return(launch, nil).Once()
	h.resolver.On("Resolve", mock.Anything, mock.Anything).Return("alice", nil).Once()
	h.pricer.On("Quote", mock.Anything, mock.MatchedBy(func(req dex.QuoteRequest) bool {
		return req.Direction == dex.Buy &&
			req.Mint == launch.Mint &&
			req.Pool == launch.Pool &&
			req.AmountIn == 500_000_000 &&
			req.SlippageBps == 1000
	})).Return(&dex.Quote{Price: 0.0001}, nil).Once()
	h.submitter.On("Submit", mock.Anything, op.Wallet, mock.Anything, uint64(800_000)).Return(buySig, nil).Once()

	require.NoError(t, h.engine.HandleLog(context.Background(), ev))

	h.submitter.AssertNumberOfCalls(t, "Submit", 1)
	h.reputation.AssertNotCalled(t, "Score", mock.Anything, mock.Anything)

	due := h.registry.DueDelayedSales(testNow.Add(15 * time.Second))
	require.Len(t, due, 1)
	assert.Equal(t, op.Key, due[0].Operator)
	assert.Equal(t, launch.Mint, due[0].Mint)
	assert.Equal(t, testNow.Add(15*time.Second), due[0].Due)
	assert.Empty(t, h.registry.DueDelayedSales(testNow.Add(14*time.Second)))

	ref, ok := h.registry.PoolOf(launch.Mint)
	require.True(t, ok)
	assert.Equal(t, launch.Pool, ref.Pool)
	assert.Equal(t, "MOON", ref.Ticker)

	assert.Equal(t, []domain.NotificationEvent{domain.NotifyBuy}, h.notifier.events())
}

func TestHandleLog_SkipsUnwatchedCreator(t *testing.T) {
	h := newHarness(t)
	op := newTestOperator(t, []string{"bob"}, watcher.Delayed{After: 15 * time.Second})
	h.engine.Watch(op)

	ev := testLogEvent()
	h.chain.On("DecodeLaunch", mock.Anything, ev.Signature, ev.Slot).Return(testLaunch(), nil).Once()
	h.resolver.On("Resolve", mock.Anything, mock.Anything).Return("alice", nil).Once()

	require.NoError(t, h.engine.HandleLog(context.Background(), ev))

	h.submitter.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.pricer.AssertNotCalled(t, "Quote", mock.Anything, mock.Anything)
	assert.Equal(t, 0, h.registry.Stats().DelayedSales)
	assert.Equal(t, 0, h.registry.Stats().ThresholdSales)
}

func TestHandleLog_IgnoresNonLaunchAndFailedEvents(t *testing.T) {
	h := newHarness(t)

	plain := domain.LogEvent{Signature: solana.Signature{1}, Logs: []string{"Program log: Instruction: Swap"}}
	require.NoError(t, h.engine.HandleLog(context.Background(), plain))

	failed := testLogEvent()
	failed.Failed = true
	require.NoError(t, h.engine.HandleLog(context.Background(), failed))

	h.chain.AssertNotCalled(t, "DecodeLaunch", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleLog_DecodeFailure(t *testing.T) {
	h := newHarness(t)
	ev := testLogEvent()
	h.chain.On("DecodeLaunch", mock.Anything, ev.Signature, ev.Slot).Return(nil, errors.New("rpc down")).Once()

	err := h.engine.HandleLog(context.Background(), ev)
	require.Error(t, err)
	h.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestHandleLaunch_TestTokenSkipped(t *testing.T) {
	h := newHarness(t)
	h.engine.Watch(newTestOperator(t, nil, watcher.Immediate{}))

	launch := testLaunch()
	launch.Symbol = " TEST "
	require.NoError(t, h.engine.HandleLaunch(context.Background(), launch))

	h.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	_, cached := h.registry.PoolOf(launch.Mint)
	assert.False(t, cached)
}

func TestHandleLaunch_UnresolvedIdentity(t *testing.T) {
	h := newHarness(t)
	h.engine.Watch(newTestOperator(t, nil, watcher.Immediate{}))

	launch := testLaunch()
	h.resolver.On("Resolve", mock.Anything, mock.Anything).Return("", errors.New("all mirrors failed")).Once()

	require.NoError(t, h.engine.HandleLaunch(context.Background(), launch))
	h.pricer.AssertNotCalled(t, "Quote", mock.Anything, mock.Anything)

	// the pool is cached before identity resolution
	_, cached := h.registry.PoolOf(launch.Mint)
	assert.True(t, cached)
}

func TestHandleLaunch_ReputationFetchedOncePerEvent(t *testing.T) {
	h := newHarness(t)
	low := newTestOperator(t, nil, watcher.Immediate{})
	low.ReputationGate = true
	low.MinScore = 200
	high := newTestOperator(t, nil, watcher.Immediate{})
	high.ReputationGate = true
	high.MinScore = 80
	h.engine.Watch(low)
	h.engine.Watch(high)

	launch := testLaunch()
	h.resolver.On("Resolve", mock.Anything, mock.Anything).Return("alice", nil).Once()
	h.reputation.On("Score", mock.Anything, "alice").Return(150.0, nil).Once()
	h.pricer.On("Quote", mock.Anything, mock.Anything).Return(&dex.Quote{Price: 0.0001}, nil).Once()
	h.submitter.On("Submit", mock.Anything, high.Wallet, mock.Anything, mock.Anything).Return(solana.Signature{7}, nil).Once()

	require.NoError(t, h.engine.HandleLaunch(context.Background(), launch))

	h.reputation.AssertNumberOfCalls(t, "Score", 1)
	h.submitter.AssertNumberOfCalls(t, "Submit", 1)
	h.submitter.AssertExpectations(t)
}

func TestHandleLaunch_ReputationFailureSkipsGatedOperator(t *testing.T) {
	h := newHarness(t)
	op := newTestOperator(t, nil, watcher.Immediate{})
	op.ReputationGate = true
	h.engine.Watch(op)

	h.resolver.On("Resolve", mock.Anything, mock.Anything).Return("alice", nil).Once()
	h.reputation.On("Score", mock.Anything, "alice").Return(0.0, errors.New("timeout")).Once()

	require.NoError(t, h.engine.HandleLaunch(context.Background(), testLaunch()))
	h.pricer.AssertNotCalled(t, "Quote", mock.Anything, mock.Anything)
}

func TestHandleLaunch_QuoteRefusedIsSoftSkip(t *testing.T) {
	h := newHarness(t)
	op := newTestOperator(t, nil, watcher.Delayed{After: time.Second})
	h.engine.Watch(op)

	h.resolver.On("Resolve", mock.Anything, mock.Anything).Return("alice", nil).Once()
	h.pricer.On("Quote", mock.Anything, mock.Anything).Return(nil, dex.ErrQuoteRefused).Once()

	require.NoError(t, h.engine.HandleLaunch(context.Background(), testLaunch()))
	h.submitter.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, h.registry.Stats().DelayedSales)
}

func TestHandleLaunch_SubmitFailureSchedulesNothing(t *testing.T) {
	h := newHarness(t)
	op := newTestOperator(t, nil, watcher.Threshold{TakeProfitPct: 10, StopLossPct: 10})
	h.engine.Watch(op)

	h.resolver.On("Resolve", mock.Anything, mock.Anything).Return("alice", nil).Once()
	h.pricer.On("Quote", mock.Anything, mock.Anything).Return(&dex.Quote{Price: 0.0001}, nil).Once()
	h.submitter.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(solana.Signature{}, errors.New("relay rejected")).Once()

	require.NoError(t, h.engine.HandleLaunch(context.Background(), testLaunch()))

	// buys are never retried
	h.submitter.AssertNumberOfCalls(t, "Submit", 1)
	assert.Equal(t, 0, h.registry.Stats().ThresholdSales)
	assert.Empty(t, h.notifier.events())
}

func TestHandleLaunch_ThresholdBoundsFromEntry(t *testing.T) {
	h := newHarness(t)
	op := newTestOperator(t, nil, watcher.Threshold{TakeProfitPct: 50, StopLossPct: 20})
	h.engine.Watch(op)

	launch := testLaunch()
	h.resolver.On("Resolve", mock.Anything, mock.Anything).Return("alice", nil).Once()
	h.pricer.On("Quote", mock.Anything, mock.Anything).Return(&dex.Quote{Price: 0.002}, nil).Once()
	h.submitter.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(solana.Signature{5}, nil).Once()

	require.NoError(t, h.engine.HandleLaunch(context.Background(), launch))

	sales := h.registry.AllThresholdSales()
	require.Len(t, sales, 1)
	assert.Equal(t, launch.Mint, sales[0].Mint)
	assert.InDelta(t, 0.002, sales[0].Entry, 1e-12)
	assert.InDelta(t, 0.003, sales[0].TakeProfit, 1e-12)
	assert.InDelta(t, 0.0016, sales[0].StopLoss, 1e-12)
}

func TestHandleLaunch_ScoreScaledDelay(t *testing.T) {
	h := newHarness(t)
	op := newTestOperator(t, nil, watcher.Delayed{After: 15 * time.Second, ScoreScaled: true})
	op.MinScore = 80
	h.engine.Watch(op)

	launch := testLaunch()
	h.resolver.On("Resolve", mock.Anything, mock.Anything).Return("alice", nil).Once()
	h.reputation.On("Score", mock.Anything, "alice").Return(290.0, nil).Once()
	h.pricer.On("Quote", mock.Anything, mock.Anything).Return(&dex.Quote{Price: 0.0001}, nil).Once()
	h.submitter.On("Submit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(solana.Signature{5}, nil).Once()

	require.NoError(t, h.engine.HandleLaunch(context.Background(), launch))

	assert.Empty(t, h.registry.DueDelayedSales(testNow.Add(34*time.Second)))
	assert.Len(t, h.registry.DueDelayedSales(testNow.Add(35*time.Second)), 1)
}

func TestRun_DrainsChannel(t *testing.T) {
	h := newHarness(t)
	events := make(chan domain.LogEvent, 3)
	for i := 0; i < 3; i++ {
		events <- domain.LogEvent{Signature: solana.Signature{byte(i)}, Logs: []string{"noise"}}
	}
	close(events)

	done := make(chan struct{})
	go func() {
		h.engine.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the channel was closed")
	}
}

func TestThresholdBounds(t *testing.T) {
	tp, sl := ThresholdBounds(1.0, 10, 10)
	assert.InDelta(t, 1.1, tp, 1e-12)
	assert.InDelta(t, 0.9, sl, 1e-12)
}
