// ==========================================
// File: internal/dex/types.go
// ==========================================
package dex

import (
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Direction of a trade.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

const LamportsPerSOL = 1_000_000_000

// QuoteRequest describes a trade. For a buy AmountIn is lamports, for a sell
// it is raw token units.
type QuoteRequest struct {
	Owner       solana.PublicKey
	Mint        solana.PublicKey
	Pool        solana.PublicKey
	Direction   Direction
	AmountIn    uint64
	SlippageBps uint16
}

// Quote is a priced trade ready to be signed.
type Quote struct {
	Instructions []solana.Instruction
	AmountIn     uint64
	ExpectedOut  uint64
	MinimumOut   uint64
	// Price is the spot price (SOL per whole token) the quote was built at.
	Price float64
}

var lamportsPerSOL = decimal.NewFromInt(LamportsPerSOL)

// SolToLamports converts SOL to lamports, truncating sub-lamport amounts.
func SolToLamports(sol float64) uint64 {
	d := decimal.NewFromFloat(sol)
	if d.IsNegative() {
		return 0
	}
	return uint64(d.Mul(lamportsPerSOL).IntPart())
}

// LamportsToSol converts lamports to SOL.
func LamportsToSol(lamports uint64) float64 {
	f, _ := decimal.NewFromUint64(lamports).Div(lamportsPerSOL).Float64()
	return f
}

// ApplySlippage returns the minimum acceptable output for amount.
func ApplySlippage(amount uint64, bps uint16) uint64 {
	if bps >= 10_000 {
		return 0
	}
	keep := decimal.NewFromInt(int64(10_000 - bps))
	return uint64(decimal.NewFromUint64(amount).Mul(keep).Div(decimal.NewFromInt(10_000)).IntPart())
}
