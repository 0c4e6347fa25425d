package solbc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

var ErrNoWebsocket = errors.New("websocket url is not configured")

// SubscribeLogs streams log notifications mentioning account. The connection
// is re-established with exponential backoff until ctx is done, at which
// point the channel is closed.
func (c *Client) SubscribeLogs(ctx context.Context, account solana.PublicKey, buffer int) (<-chan domain.LogEvent, error) {
	if c.wsURL == "" {
		return nil, ErrNoWebsocket
	}
	if buffer <= 0 {
		buffer = 64
	}

	out := make(chan domain.LogEvent, buffer)
	go func() {
		defer close(out)

		reconnect := backoff.NewExponentialBackOff()
		reconnect.InitialInterval = 500 * time.Millisecond
		reconnect.MaxInterval = 15 * time.Second

		for ctx.Err() == nil {
			started := time.Now()
			err := c.listen(ctx, account, out)
			if ctx.Err() != nil {
				return
			}
			if time.Since(started) > time.Minute {
				reconnect.Reset()
			}
			wait := reconnect.NextBackOff()
			c.logger.Warn("Log subscription dropped, reconnecting",
				zap.String("account", account.String()),
				zap.Duration("backoff", wait),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}()
	return out, nil
}

type logResult struct {
	msg *ws.LogResult
	err error
}

func (c *Client) listen(ctx context.Context, account solana.PublicKey, out chan<- domain.LogEvent) error {
	wsClient, err := ws.Connect(ctx, c.wsURL)
	if err != nil {
		return fmt.Errorf("ws connect: %w", err)
	}
	defer wsClient.Close()

	sub, err := wsClient.LogsSubscribeMentions(account, rpc.CommitmentConfirmed)
	if err != nil {
		return fmt.Errorf("logs subscribe: %w", err)
	}

	c.logger.Info("Subscribed to logs", zap.String("account", account.String()))

	// Recv has no context, so it runs on its own goroutine. Closing the
	// socket on return fails the pending read and ends the reader.
	done := make(chan struct{})
	defer close(done)
	results := make(chan logResult)
	go func() {
		for {
			msg, err := sub.Recv()
			select {
			case results <- logResult{msg, err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		var r logResult
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r = <-results:
		}
		if r.err != nil {
			return fmt.Errorf("recv: %w", r.err)
		}
		if r.msg == nil {
			continue
		}

		ev := domain.LogEvent{
			Signature: r.msg.Value.Signature,
			Slot:      r.msg.Context.Slot,
			Logs:      r.msg.Value.Logs,
			Failed:    r.msg.Value.Err != nil,
			Received:  time.Now(),
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
