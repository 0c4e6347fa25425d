package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

const DefaultBotURL = "http://127.0.0.1:8000/notify"

// HTTPNotifier posts notifications to the companion chat bot process.
type HTTPNotifier struct {
	url    string
	client *http.Client
}

func NewHTTPNotifier(url string, timeout time.Duration) *HTTPNotifier {
	if url == "" {
		url = DefaultBotURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPNotifier{url: url, client: &http.Client{Timeout: timeout}}
}

type notifyRequest struct {
	UserID  int64   `json:"user_id"`
	Message string  `json:"message"`
	Event   string  `json:"event"`
	Mint    string  `json:"mint"`
	Amount  float64 `json:"amount"`
}

func (h *HTTPNotifier) Notify(ctx context.Context, n domain.Notification) error {
	body, err := sonic.Marshal(notifyRequest{
		UserID:  n.ChannelID,
		Message: n.Message,
		Event:   string(n.Event),
		Mint:    n.Mint,
		Amount:  n.Amount,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify bot: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("notify bot: unexpected status %d", resp.StatusCode)
	}
	return nil
}
