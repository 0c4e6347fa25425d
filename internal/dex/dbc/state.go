// =============================
// File: internal/dex/dbc/state.go
// =============================
package dbc

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// VirtualPool account layout (after the 8 byte discriminator and the 64 byte
// volatility tracker).
const (
	poolConfigOffset       = 72
	poolCreatorOffset      = 104
	poolBaseMintOffset     = 136
	poolBaseVaultOffset    = 168
	poolQuoteVaultOffset   = 200
	poolBaseReserveOffset  = 232
	poolQuoteReserveOffset = 240
	poolSqrtPriceOffset    = 280
	poolMinSize            = poolSqrtPriceOffset + 16
)

// PoolConfig account layout: quote mint, fee claimer, leftover receiver and
// then the base fee scheduler.
const (
	configQuoteMintOffset       = 8
	configCliffFeeOffset        = 104
	configPeriodFrequencyOffset = 112
	configReductionFactorOffset = 120
	configNumberOfPeriodOffset  = 128
	configFeeModeOffset         = 130
	configMinSize               = configFeeModeOffset + 1
)

// Mint account layout.
const (
	mintDecimalsOffset = 44
	mintMinSize        = mintDecimalsOffset + 1
)

// FeeDenominator scales fee numerators.
const FeeDenominator = 1_000_000_000

// VirtualPool is the subset of pool state needed to trade.
type VirtualPool struct {
	Config       solana.PublicKey
	Creator      solana.PublicKey
	BaseMint     solana.PublicKey
	BaseVault    solana.PublicKey
	QuoteVault   solana.PublicKey
	BaseReserve  uint64
	QuoteReserve uint64
	SqrtPrice    *big.Int // Q64.64
}

// FeeScheduler is the base fee schedule of a pool config.
type FeeScheduler struct {
	CliffFeeNumerator uint64
	PeriodFrequency   uint64
	ReductionFactor   uint64
	NumberOfPeriod    uint16
	Mode              uint8
}

// PoolConfig is the subset of config state needed to trade.
type PoolConfig struct {
	QuoteMint solana.PublicKey
	Fees      FeeScheduler
}

func readKey(data []byte, offset int) solana.PublicKey {
	return solana.PublicKeyFromBytes(data[offset : offset+32])
}

// ParseVirtualPool decodes a pool account.
func ParseVirtualPool(data []byte) (*VirtualPool, error) {
	if len(data) < poolMinSize {
		return nil, fmt.Errorf("pool account too short: %d bytes", len(data))
	}

	// u128 little endian -> big endian for big.Int
	raw := make([]byte, 16)
	for i := 0; i < 16; i++ {
		raw[15-i] = data[poolSqrtPriceOffset+i]
	}

	return &VirtualPool{
		Config:       readKey(data, poolConfigOffset),
		Creator:      readKey(data, poolCreatorOffset),
		BaseMint:     readKey(data, poolBaseMintOffset),
		BaseVault:    readKey(data, poolBaseVaultOffset),
		QuoteVault:   readKey(data, poolQuoteVaultOffset),
		BaseReserve:  binary.LittleEndian.Uint64(data[poolBaseReserveOffset:]),
		QuoteReserve: binary.LittleEndian.Uint64(data[poolQuoteReserveOffset:]),
		SqrtPrice:    new(big.Int).SetBytes(raw),
	}, nil
}

// ParsePoolConfig decodes a pool config account.
func ParsePoolConfig(data []byte) (*PoolConfig, error) {
	if len(data) < configMinSize {
		return nil, fmt.Errorf("config account too short: %d bytes", len(data))
	}
	return &PoolConfig{
		QuoteMint: readKey(data, configQuoteMintOffset),
		Fees: FeeScheduler{
			CliffFeeNumerator: binary.LittleEndian.Uint64(data[configCliffFeeOffset:]),
			PeriodFrequency:   binary.LittleEndian.Uint64(data[configPeriodFrequencyOffset:]),
			ReductionFactor:   binary.LittleEndian.Uint64(data[configReductionFactorOffset:]),
			NumberOfPeriod:    binary.LittleEndian.Uint16(data[configNumberOfPeriodOffset:]),
			Mode:              data[configFeeModeOffset],
		},
	}, nil
}

// ParseMintDecimals reads the decimals of an SPL mint account.
func ParseMintDecimals(data []byte) (uint8, error) {
	if len(data) < mintMinSize {
		return 0, fmt.Errorf("mint account too short: %d bytes", len(data))
	}
	return data[mintDecimalsOffset], nil
}

var q64 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 64))

// RawPrice returns quote atoms per base atom.
func (p *VirtualPool) RawPrice() float64 {
	if p.SqrtPrice == nil || p.SqrtPrice.Sign() == 0 {
		return 0
	}
	sqrt := new(big.Float).SetPrec(128).SetInt(p.SqrtPrice)
	sqrt.Quo(sqrt, q64)
	price, _ := new(big.Float).Mul(sqrt, sqrt).Float64()
	return price
}

// FeeFraction is the cliff fee as a fraction of the input.
func (f FeeScheduler) FeeFraction() float64 {
	return float64(f.CliffFeeNumerator) / FeeDenominator
}
