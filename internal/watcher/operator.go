package watcher

import (
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/launch-sniper/internal/wallet"
)

// Operator is a registered sniper.
type Operator struct {
	Key       string
	Wallet    *wallet.Wallet
	ChannelID int64

	// Targets are lower-cased creator handles. Empty means every creator.
	Targets []string

	BuyAmount float64 // SOL
	Slippage  float64 // percent
	Tip       float64 // SOL

	Strategy       Strategy
	ReputationGate bool
	MinScore       float64

	Active bool
}

// NormalizeTargets trims, lower-cases and de-duplicates creator handles.
func NormalizeTargets(targets []string) []string {
	seen := make(map[string]struct{}, len(targets))
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		t = normalizeHandle(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(h), "@")))
}

// Watches reports whether the operator reacts to creator.
func (o *Operator) Watches(creator string) bool {
	if len(o.Targets) == 0 {
		return true
	}
	creator = normalizeHandle(creator)
	for _, t := range o.Targets {
		if t == creator {
			return true
		}
	}
	return false
}

// SlippageBps converts the percent slippage to basis points.
func (o *Operator) SlippageBps() uint16 {
	bps := o.Slippage * 100
	switch {
	case bps < 0:
		return 0
	case bps > 10_000:
		return 10_000
	}
	return uint16(bps)
}

func (o *Operator) clone() *Operator {
	cp := *o
	cp.Targets = append([]string(nil), o.Targets...)
	return &cp
}

// PoolRef caches the pool of a launched mint.
type PoolRef struct {
	Mint   solana.PublicKey
	Pool   solana.PublicKey
	Ticker string
}
