// internal/blockchain/solbc/rpc/rpc.go
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const (
	DefaultAttempts = 2
	DefaultDelay    = 500 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

var (
	ErrNoRPCNodes = errors.New("no RPC nodes available")
	ErrTimeout    = errors.New("request timeout")
)

// Options tune the retry behaviour of a Pool.
type Options struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
}

// Pool rotates requests over several RPC nodes and retries a failed request
// on the next node.
type Pool struct {
	nodes   []*solanarpc.Client
	urls    []string
	current int
	mu      sync.Mutex
	opts    Options
	logger  *zap.Logger
}

// NewPool creates a node pool.
func NewPool(urls []string, opts Options, logger *zap.Logger) (*Pool, error) {
	if len(urls) == 0 {
		return nil, ErrNoRPCNodes
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Delay < 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	nodes := make([]*solanarpc.Client, len(urls))
	for i, url := range urls {
		nodes[i] = solanarpc.New(url)
	}

	return &Pool{
		nodes:  nodes,
		urls:   urls,
		opts:   opts,
		logger: logger.Named("rpc-pool"),
	}, nil
}

// Permanent marks an error that must not be retried on another node.
type Permanent struct{ Err error }

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Execute runs operation against the next node, moving on to the following
// node when it fails. Each call is bounded by the pool timeout.
func (p *Pool) Execute(ctx context.Context, operation func(context.Context, *solanarpc.Client) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < p.opts.Attempts; attempt++ {
		if timeoutCtx.Err() != nil {
			break
		}

		p.mu.Lock()
		node := p.nodes[p.current]
		url := p.urls[p.current]
		p.current = (p.current + 1) % len(p.nodes)
		p.mu.Unlock()

		err := operation(timeoutCtx, node)
		if err == nil {
			return nil
		}
		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		lastErr = err

		p.logger.Debug("RPC request failed, trying next node",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < p.opts.Attempts-1 {
			select {
			case <-timeoutCtx.Done():
			case <-time.After(p.opts.Delay):
			}
		}
	}

	if lastErr == nil {
		return ErrTimeout
	}
	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", ErrTimeout, lastErr)
	}
	return lastErr
}

// Primary returns the first configured node, used for calls that should stick
// to one endpoint.
func (p *Pool) Primary() *solanarpc.Client {
	return p.nodes[0]
}
