// Package reputation scores creator handles through the TweetScout API.
package reputation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.tweetscout.io/v2"

var (
	ErrMissingAPIKey = errors.New("reputation api key is not configured")
	ErrMalformed     = errors.New("malformed reputation response")
)

// Client queries creator scores.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	attempts uint
	delay    time.Duration
	logger   *zap.Logger
}

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Attempts   uint
	RetryDelay time.Duration
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: cfg.Timeout},
		attempts: cfg.Attempts,
		delay:    cfg.RetryDelay,
		logger:   logger.Named("reputation"),
	}
}

type scoreResponse struct {
	Score   *float64 `json:"score"`
	Message string   `json:"message"`
}

// Score returns the trust score of handle.
func (c *Client) Score(ctx context.Context, handle string) (float64, error) {
	if c.apiKey == "" {
		return 0, ErrMissingAPIKey
	}
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	endpoint := fmt.Sprintf("%s/score/%s", c.baseURL, url.PathEscape(handle))

	score, err := backoff.Retry(ctx, func() (float64, error) {
		return c.fetch(ctx, endpoint)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.delay)),
		backoff.WithMaxTries(c.attempts),
	)
	if err != nil {
		return 0, fmt.Errorf("score %s: %w", handle, err)
	}

	c.logger.Debug("Creator scored", zap.String("handle", handle), zap.Float64("score", score))
	return score, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("ApiKey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, backoff.Permanent(ctx.Err())
		}
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return 0, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return 0, backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var out scoreResponse
	if err := sonic.Unmarshal(body, &out); err != nil {
		return 0, backoff.Permanent(fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if out.Score == nil {
		return 0, backoff.Permanent(ErrMalformed)
	}
	return *out.Score, nil
}
