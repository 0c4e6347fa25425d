// =============================
// File: internal/dex/dbc/pricer.go
// =============================
package dbc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/launch-sniper/internal/blockchain/solbc"
	"github.com/rovshanmuradov/launch-sniper/internal/dex"
)

// Default fee scheduler limits. Pools with a longer or flatter anti-snipe
// schedule are not bought.
const (
	DefaultMaxFeePeriods      = 37
	DefaultMinReductionFactor = 822
)

// ChainReader is the part of the chain client the pricer needs.
type ChainReader interface {
	AccountData(ctx context.Context, pubkey solana.PublicKey) ([]byte, error)
}

type Config struct {
	ComputeUnitLimit   uint32
	ComputeUnitPrice   uint64 // micro-lamports
	MaxFeePeriods      uint16
	MinReductionFactor uint64
	FeeRecipient       solana.PublicKey
	PlatformFeeBps     uint16
}

// Pricer implements dex.Pricer for dynamic bonding curve pools.
type Pricer struct {
	chain    ChainReader
	cfg      Config
	logger   *zap.Logger
	decimals sync.Map // solana.PublicKey -> uint8
}

func NewPricer(chain ChainReader, cfg Config, logger *zap.Logger) *Pricer {
	if cfg.MaxFeePeriods == 0 {
		cfg.MaxFeePeriods = DefaultMaxFeePeriods
	}
	if cfg.MinReductionFactor == 0 {
		cfg.MinReductionFactor = DefaultMinReductionFactor
	}
	return &Pricer{
		chain:  chain,
		cfg:    cfg,
		logger: logger.Named("dbc"),
	}
}

var _ dex.Pricer = (*Pricer)(nil)

// snapshot is the on-chain state a quote is built from.
type snapshot struct {
	pool     *VirtualPool
	config   *PoolConfig
	decimals uint8
}

func (p *Pricer) loadPool(ctx context.Context, pool solana.PublicKey) (*VirtualPool, error) {
	data, err := p.chain.AccountData(ctx, pool)
	if err != nil {
		if solbc.IsAccountNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", dex.ErrPoolNotFound, pool)
		}
		return nil, err
	}
	return ParseVirtualPool(data)
}

func (p *Pricer) load(ctx context.Context, pool solana.PublicKey) (*snapshot, error) {
	state, err := p.loadPool(ctx, pool)
	if err != nil {
		return nil, err
	}

	snap := &snapshot{pool: state}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := p.chain.AccountData(gctx, state.Config)
		if err != nil {
			return fmt.Errorf("load pool config: %w", err)
		}
		snap.config, err = ParsePoolConfig(data)
		return err
	})
	g.Go(func() error {
		var err error
		snap.decimals, err = p.mintDecimals(gctx, state.BaseMint)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (p *Pricer) mintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	if v, ok := p.decimals.Load(mint); ok {
		return v.(uint8), nil
	}
	data, err := p.chain.AccountData(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("load mint %s: %w", mint, err)
	}
	dec, err := ParseMintDecimals(data)
	if err != nil {
		return 0, err
	}
	p.decimals.Store(mint, dec)
	return dec, nil
}

// Refuses reports whether the fee schedule of a pool is too aggressive to buy into.
func (p *Pricer) Refuses(fees FeeScheduler) bool {
	return fees.NumberOfPeriod > p.cfg.MaxFeePeriods || fees.ReductionFactor < p.cfg.MinReductionFactor
}

// Quote prices a trade at the current spot price and builds its instructions.
// The minimum output guards the actual curve execution on chain.
func (p *Pricer) Quote(ctx context.Context, req dex.QuoteRequest) (*dex.Quote, error) {
	if req.AmountIn == 0 {
		return nil, errors.New("amount in must be positive")
	}
	snap, err := p.load(ctx, req.Pool)
	if err != nil {
		return nil, err
	}
	if !snap.pool.BaseMint.IsZero() && !req.Mint.IsZero() && !snap.pool.BaseMint.Equals(req.Mint) {
		return nil, fmt.Errorf("pool %s trades %s, not %s", req.Pool, snap.pool.BaseMint, req.Mint)
	}

	if req.Direction == dex.Buy && p.Refuses(snap.config.Fees) {
		p.logger.Info("Refusing buy, adversarial fee schedule",
			zap.String("pool", req.Pool.String()),
			zap.Uint16("periods", snap.config.Fees.NumberOfPeriod),
			zap.Uint64("reduction_factor", snap.config.Fees.ReductionFactor))
		return nil, dex.ErrQuoteRefused
	}

	rawPrice := snap.pool.RawPrice()
	if rawPrice <= 0 {
		return nil, fmt.Errorf("pool %s has no price", req.Pool)
	}
	expected := expectedOut(req.Direction, req.AmountIn, rawPrice, snap.config.Fees.FeeFraction())
	minOut := dex.ApplySlippage(expected, req.SlippageBps)

	var ixs []solana.Instruction
	switch req.Direction {
	case dex.Buy:
		ixs, err = p.buyInstructions(req.Owner, req.Pool, snap.pool, snap.config.QuoteMint, req.AmountIn, minOut)
	case dex.Sell:
		ixs, err = p.sellInstructions(req.Owner, req.Pool, snap.pool, snap.config.QuoteMint, req.AmountIn, minOut)
	default:
		return nil, fmt.Errorf("unknown direction %q", req.Direction)
	}
	if err != nil {
		return nil, err
	}

	return &dex.Quote{
		Instructions: ixs,
		AmountIn:     req.AmountIn,
		ExpectedOut:  expected,
		MinimumOut:   minOut,
		Price:        tokenPrice(rawPrice, snap.decimals),
	}, nil
}

// SpotPrice returns SOL per whole token.
func (p *Pricer) SpotPrice(ctx context.Context, pool solana.PublicKey) (float64, bool, error) {
	state, err := p.loadPool(ctx, pool)
	if errors.Is(err, dex.ErrPoolNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	raw := state.RawPrice()
	if raw <= 0 {
		return 0, false, nil
	}
	dec, err := p.mintDecimals(ctx, state.BaseMint)
	if err != nil {
		return 0, false, err
	}
	return tokenPrice(raw, dec), true, nil
}

func (p *Pricer) platformFee(amountIn uint64) uint64 {
	if p.cfg.PlatformFeeBps == 0 || p.cfg.FeeRecipient.IsZero() {
		return 0
	}
	return amountIn * uint64(p.cfg.PlatformFeeBps) / 10_000
}

// expectedOut converts amountIn at rawPrice (quote atoms per base atom) after fees.
func expectedOut(dir dex.Direction, amountIn uint64, rawPrice, fee float64) uint64 {
	net := float64(amountIn) * (1 - fee)
	var out float64
	if dir == dex.Buy {
		out = net / rawPrice
	} else {
		out = net * rawPrice
	}
	if out <= 0 || math.IsNaN(out) {
		return 0
	}
	if out >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(out)
}

// tokenPrice converts a raw price to SOL per whole token.
func tokenPrice(rawPrice float64, baseDecimals uint8) float64 {
	return rawPrice * math.Pow10(int(baseDecimals)) / dex.LamportsPerSOL
}
