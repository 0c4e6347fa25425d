// =============================
// File: internal/dex/dex.go
// =============================
package dex

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrQuoteRefused is returned when pool parameters make trading unsafe.
	ErrQuoteRefused = errors.New("quote refused")
	// ErrPoolNotFound is returned for pools that do not exist on chain (yet).
	ErrPoolNotFound = errors.New("pool not found")
)

// Pricer quotes trades against a pool and builds the trade instructions.
type Pricer interface {
	// Quote builds the instructions for a trade. A refusal is reported as
	// ErrQuoteRefused.
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
	// SpotPrice returns the price of one whole token in SOL. ok is false when
	// the pool is not available.
	SpotPrice(ctx context.Context, pool solana.PublicKey) (price float64, ok bool, err error)
}
