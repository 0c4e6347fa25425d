// Package watcher holds the in-memory directory of operators, their
// strategies, cached pools and pending sales.
package watcher

import (
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
)

// ScheduledSale is a fixed-delay sale.
type ScheduledSale struct {
	Operator string
	Mint     solana.PublicKey
	Due      time.Time
}

// ThresholdSale is a take-profit / stop-loss position.
type ThresholdSale struct {
	Operator   string
	Mint       solana.PublicKey
	Entry      float64
	TakeProfit float64
	StopLoss   float64
}

type saleKey struct {
	operator string
	mint     solana.PublicKey
}

// Registry is safe for concurrent use. Every read returns a copy.
type Registry struct {
	mu sync.RWMutex

	operators map[string]*Operator
	pools     map[solana.PublicKey]PoolRef
	delayed   map[saleKey]ScheduledSale
	threshold map[saleKey]ThresholdSale

	now func() time.Time
}

type Option func(*Registry)

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		operators: make(map[string]*Operator),
		pools:     make(map[solana.PublicKey]PoolRef),
		delayed:   make(map[saleKey]ScheduledSale),
		threshold: make(map[saleKey]ThresholdSale),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts or overwrites op and marks it active. Targets are stored
// normalized.
func (r *Registry) Register(op *Operator) {
	cp := op.clone()
	cp.Targets = NormalizeTargets(cp.Targets)
	cp.Active = true

	r.mu.Lock()
	r.operators[cp.Key] = cp
	r.mu.Unlock()
}

// Deactivate stops an operator. Pending sales are left in place.
func (r *Registry) Deactivate(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.operators[key]
	if !ok {
		return false
	}
	op.Active = false
	return true
}

// Operator returns a copy of the operator record.
func (r *Registry) Operator(key string) (*Operator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.operators[key]
	if !ok {
		return nil, false
	}
	return op.clone(), true
}

func (r *Registry) StrategyOf(key string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.operators[key]
	if !ok {
		return nil, false
	}
	return op.Strategy, true
}

func (r *Registry) IsActive(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.operators[key]
	return ok && op.Active
}

// MatchingOperators returns every active operator watching creator.
func (r *Registry) MatchingOperators(creator string) []*Operator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Operator
	for _, op := range r.operators {
		if op.Active && op.Watches(creator) {
			out = append(out, op.clone())
		}
	}
	return out
}

// SetPool caches a pool reference, last writer wins.
func (r *Registry) SetPool(ref PoolRef) {
	r.mu.Lock()
	r.pools[ref.Mint] = ref
	r.mu.Unlock()
}

func (r *Registry) PoolOf(mint solana.PublicKey) (PoolRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, ok := r.pools[mint]
	return ref, ok
}

// ScheduleDelayedSale schedules a sale of mint after delay. An existing sale
// for the same pair is replaced.
func (r *Registry) ScheduleDelayedSale(key string, mint solana.PublicKey, delay time.Duration) ScheduledSale {
	sale := ScheduledSale{Operator: key, Mint: mint, Due: r.now().Add(delay)}

	r.mu.Lock()
	r.delayed[saleKey{key, mint}] = sale
	r.mu.Unlock()
	return sale
}

// DueDelayedSales returns the sales of active operators due at or before now.
func (r *Registry) DueDelayedSales(now time.Time) []ScheduledSale {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ScheduledSale
	for k, sale := range r.delayed {
		op, ok := r.operators[k.operator]
		if !ok || !op.Active {
			continue
		}
		if !sale.Due.After(now) {
			out = append(out, sale)
		}
	}
	return out
}

// RemoveDelayedSale reports whether a sale was removed.
func (r *Registry) RemoveDelayedSale(key string, mint solana.PublicKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := saleKey{key, mint}
	if _, ok := r.delayed[k]; !ok {
		return false
	}
	delete(r.delayed, k)
	return true
}

// HasDelayedSale reports whether a fixed-delay sale is pending for the pair.
func (r *Registry) HasDelayedSale(key string, mint solana.PublicKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.delayed[saleKey{key, mint}]
	return ok
}

func (r *Registry) ScheduleThresholdSale(sale ThresholdSale) {
	r.mu.Lock()
	r.threshold[saleKey{sale.Operator, sale.Mint}] = sale
	r.mu.Unlock()
}

func (r *Registry) AllThresholdSales() []ThresholdSale {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ThresholdSale, 0, len(r.threshold))
	for _, sale := range r.threshold {
		out = append(out, sale)
	}
	return out
}

func (r *Registry) HasThresholdSale(key string, mint solana.PublicKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.threshold[saleKey{key, mint}]
	return ok
}

func (r *Registry) RemoveThresholdSale(key string, mint solana.PublicKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := saleKey{key, mint}
	if _, ok := r.threshold[k]; !ok {
		return false
	}
	delete(r.threshold, k)
	return true
}

// Stats is a point-in-time summary used for logging.
type Stats struct {
	Operators      int
	Active         int
	Pools          int
	DelayedSales   int
	ThresholdSales int
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		Operators:      len(r.operators),
		Pools:          len(r.pools),
		DelayedSales:   len(r.delayed),
		ThresholdSales: len(r.threshold),
	}
	for _, op := range r.operators {
		if op.Active {
			s.Active++
		}
	}
	return s
}
