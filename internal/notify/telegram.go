package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

// Telegram sends notifications straight through the Bot API. The channel id
// of an operator is its Telegram chat id.
type Telegram struct {
	bot *tgbot.BotAPI
}

// NewTelegram connects to the public Bot API. Every request is bounded by
// timeout.
func NewTelegram(token string, timeout time.Duration) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, tgbot.APIEndpoint, timeout)
}

// NewTelegramWithEndpoint is NewTelegram against a custom Bot API server.
func NewTelegramWithEndpoint(token, endpoint string, timeout time.Duration) (*Telegram, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	b, err := tgbot.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b}, nil
}

// Notify returns when the message is sent or ctx is done, whichever comes
// first. The Bot API client has no context support, so an abandoned send
// finishes in the background under the client timeout.
func (t *Telegram) Notify(ctx context.Context, n domain.Notification) error {
	if n.ChannelID == 0 {
		return nil
	}

	sent := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(tgbot.NewMessage(n.ChannelID, n.Message))
		sent <- err
	}()

	select {
	case err := <-sent:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telegram send: %w", ctx.Err())
	}
}
