// internal/sniping/mocks_test.go
package sniping

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/launch-sniper/internal/dex"
	"github.com/rovshanmuradov/launch-sniper/internal/domain"
	"github.com/rovshanmuradov/launch-sniper/internal/wallet"
	"github.com/rovshanmuradov/launch-sniper/internal/watcher"
)

type MockChain struct {
	mock.Mock
}

func (m *MockChain) DecodeLaunch(ctx context.Context, sig solana.Signature, slot uint64) (*domain.LaunchEvent, error) {
	args := m.Called(ctx, sig, slot)
	ev, _ := args.Get(0).(*domain.LaunchEvent)
	return ev, args.Error(1)
}

func (m *MockChain) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, bool, error) {
	args := m.Called(ctx, owner, mint)
	return args.Get(0).(uint64), args.Bool(1), args.Error(2)
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, locators []string) (string, error) {
	args := m.Called(ctx, locators)
	return args.String(0), args.Error(1)
}

type MockReputation struct {
	mock.Mock
}

func (m *MockReputation) Score(ctx context.Context, handle string) (float64, error) {
	args := m.Called(ctx, handle)
	return args.Get(0).(float64), args.Error(1)
}

type MockPricer struct {
	mock.Mock
}

func (m *MockPricer) Quote(ctx context.Context, req dex.QuoteRequest) (*dex.Quote, error) {
	args := m.Called(ctx, req)
	q, _ := args.Get(0).(*dex.Quote)
	return q, args.Error(1)
}

func (m *MockPricer) SpotPrice(ctx context.Context, pool solana.PublicKey) (float64, bool, error) {
	args := m.Called(ctx, pool)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, signer *wallet.Wallet, ixs []solana.Instruction, tip uint64) (solana.Signature, error) {
	args := m.Called(ctx, signer, ixs, tip)
	return args.Get(0).(solana.Signature), args.Error(1)
}

// recordingNotifier keeps every notification it receives.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) events() []domain.NotificationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.NotificationEvent, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Event)
	}
	return out
}

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	engine     *Engine
	registry   *watcher.Registry
	chain      *MockChain
	resolver   *MockResolver
	reputation *MockReputation
	pricer     *MockPricer
	submitter  *MockSubmitter
	notifier   *recordingNotifier
	now        time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		chain:      new(MockChain),
		resolver:   new(MockResolver),
		reputation: new(MockReputation),
		pricer:     new(MockPricer),
		submitter:  new(MockSubmitter),
		notifier:   &recordingNotifier{},
		now:        testNow,
	}
	clock := func() time.Time { return h.now }
	h.registry = watcher.NewRegistry(watcher.WithClock(clock))
	h.engine = NewEngine(Deps{
		Registry:   h.registry,
		Chain:      h.chain,
		Resolver:   h.resolver,
		Reputation: h.reputation,
		Pricer:     h.pricer,
		Submitter:  h.submitter,
		Notifier:   h.notifier,
	}, Config{
		Workers:         2,
		CallTimeout:     time.Second,
		BalanceAttempts: 2,
	}, zaptest.NewLogger(t))
	h.engine.SetClock(clock)
	return h
}

func newTestWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.NewWallet(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)
	return w
}

func newTestOperator(t *testing.T, targets []string, strategy watcher.Strategy) *watcher.Operator {
	t.Helper()
	w := newTestWallet(t)
	return &watcher.Operator{
		Key:       w.PublicKey.String(),
		Wallet:    w,
		ChannelID: 42,
		Targets:   watcher.NormalizeTargets(targets),
		BuyAmount: 0.5,
		Slippage:  10,
		Tip:       0.0008,
		Strategy:  strategy,
	}
}

func testLaunch() *domain.LaunchEvent {
	return &domain.LaunchEvent{
		Mint:   solana.NewWallet().PublicKey(),
		Pool:   solana.NewWallet().PublicKey(),
		Name:   "Moon Coin",
		Symbol: "MOON",
		URI:    "https://ipfs.io/ipfs/QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
		Slot:   100,
	}
}

func testLogEvent() domain.LogEvent {
	return domain.LogEvent{
		Signature: solana.Signature{1, 2, 3},
		Slot:      100,
		Logs: []string{
			"Program dbcij3LWUppWqq96dh6gJWwBifmcGfLSB5D4DuSMaqN invoke [1]",
			"Program log: Instruction: InitializeVirtualPoolWithSplToken",
		},
	}
}
