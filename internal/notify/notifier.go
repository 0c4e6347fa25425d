// Package notify delivers operator-facing messages.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

// Notifier delivers a message to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log only writes notifications to the logger.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("notify")}
}

func (l *Log) Notify(_ context.Context, n domain.Notification) error {
	l.logger.Info(n.Message,
		zap.Int64("channel", n.ChannelID),
		zap.String("event", string(n.Event)),
		zap.String("mint", n.Mint),
		zap.Float64("amount", n.Amount))
	return nil
}
