package reputation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, url string) *Client {
	return NewClient(Config{
		BaseURL:    url,
		APIKey:     "secret",
		Attempts:   3,
		RetryDelay: time.Millisecond,
	}, zaptest.NewLogger(t))
}

func TestScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/score/alice", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("ApiKey"))
		_, _ = w.Write([]byte(`{"score": 312.5}`))
	}))
	defer srv.Close()

	score, err := newTestClient(t, srv.URL).Score(context.Background(), "@alice")
	require.NoError(t, err)
	assert.Equal(t, 312.5, score)
}

func TestScore_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"score": 90}`))
	}))
	defer srv.Close()

	score, err := newTestClient(t, srv.URL).Score(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 90.0, score)
	assert.Equal(t, int32(2), calls.Load())
}

func TestScore_MalformedFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"message":"user not found"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Score(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestScore_MissingKey(t *testing.T) {
	c := NewClient(Config{}, zaptest.NewLogger(t))
	_, err := c.Score(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
