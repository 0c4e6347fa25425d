// Package metadata resolves the creator identity of a launch from its
// off-chain metadata, racing every known mirror.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoLocators = errors.New("no metadata locators")
	ErrNoIdentity = errors.New("metadata has no creator identity")
)

// Fetcher reads the creator identity from a single mirror.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (string, error)
}

// MirrorError is the failure of one mirror.
type MirrorError struct {
	Locator string
	Err     error
}

func (e *MirrorError) Error() string { return fmt.Sprintf("%s: %v", e.Locator, e.Err) }
func (e *MirrorError) Unwrap() error { return e.Err }

// AggregateError is returned when every mirror failed.
type AggregateError struct {
	Errors []*MirrorError
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, m := range e.Errors {
		parts = append(parts, m.Error())
	}
	return fmt.Sprintf("all %d metadata mirrors failed: %s", len(e.Errors), strings.Join(parts, "; "))
}

func (e *AggregateError) Unwrap() []error {
	out := make([]error, 0, len(e.Errors))
	for _, m := range e.Errors {
		out = append(out, m)
	}
	return out
}

// Resolver races lookups across mirrors.
type Resolver struct {
	fetcher Fetcher
	timeout time.Duration
	logger  *zap.Logger
}

func NewResolver(fetcher Fetcher, timeout time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		timeout: timeout,
		logger:  logger.Named("metadata"),
	}
}

// Resolve returns the first identity produced by any locator. Remaining
// lookups are cancelled as soon as one succeeds.
func (r *Resolver) Resolve(ctx context.Context, locators []string) (string, error) {
	if len(locators) == 0 {
		return "", ErrNoLocators
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if r.timeout > 0 {
		var cancelTimeout context.CancelFunc
		raceCtx, cancelTimeout = context.WithTimeout(raceCtx, r.timeout)
		defer cancelTimeout()
	}

	var (
		mu       sync.Mutex
		found    string
		winner   string
		failures = make([]*MirrorError, 0, len(locators))
	)

	var g errgroup.Group
	for _, locator := range locators {
		g.Go(func() error {
			start := time.Now()
			identity, err := r.fetcher.Fetch(raceCtx, locator)
			if err == nil && identity == "" {
				err = ErrNoIdentity
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, &MirrorError{Locator: locator, Err: err})
				return nil
			}
			if found == "" {
				found = identity
				winner = locator
				cancel()
				r.logger.Debug("Metadata mirror won",
					zap.String("locator", locator),
					zap.Duration("elapsed", time.Since(start)))
			}
			return nil
		})
	}
	_ = g.Wait()

	if found != "" {
		r.logger.Debug("Creator identity resolved",
			zap.String("identity", found),
			zap.String("locator", winner))
		return found, nil
	}
	return "", &AggregateError{Errors: failures}
}
