package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const maxDocumentSize = 1 << 20

// document is the subset of the launch metadata we care about.
type document struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Metadata struct {
		TweetCreatorUsername string `json:"tweetCreatorUsername"`
		TweetCreatorUserID   string `json:"tweetCreatorUserId"`
		TweetID              string `json:"tweetId"`
	} `json:"metadata"`
}

// HTTPFetcher downloads metadata documents over HTTP.
type HTTPFetcher struct {
	client   *http.Client
	attempts uint
	backoff  time.Duration
	logger   *zap.Logger
}

func NewHTTPFetcher(client *http.Client, attempts uint, retryDelay time.Duration, logger *zap.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if attempts == 0 {
		attempts = 1
	}
	return &HTTPFetcher{
		client:   client,
		attempts: attempts,
		backoff:  retryDelay,
		logger:   logger.Named("metadata-fetcher"),
	}
}

// Fetch returns the creator handle found at locator. Network errors, 429 and
// 5xx responses are retried; anything else fails immediately.
func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) (string, error) {
	operation := func() (string, error) {
		return f.fetchOnce(ctx, locator)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(f.backoff)),
		backoff.WithMaxTries(f.attempts),
		backoff.WithNotify(func(err error, d time.Duration) {
			f.logger.Debug("Retrying metadata fetch",
				zap.String("locator", locator),
				zap.Duration("backoff", d),
				zap.Error(err))
		}),
	)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, locator string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", statusErr
		}
		return "", backoff.Permanent(statusErr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return "", err
	}

	identity, err := parseIdentity(body)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	return identity, nil
}

func parseIdentity(body []byte) (string, error) {
	var doc document
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("malformed metadata: %w", err)
	}
	handle := strings.TrimPrefix(strings.TrimSpace(doc.Metadata.TweetCreatorUsername), "@")
	if handle == "" {
		return "", ErrNoIdentity
	}
	return handle, nil
}
