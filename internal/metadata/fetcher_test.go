package metadata

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

func TestHTTPFetcher_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Coin","symbol":"COIN","metadata":{"tweetCreatorUsername":"@Alice","tweetCreatorUserId":"42"}}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), 3, time.Millisecond, zaptest.NewLogger(t))
	identity, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Alice", identity)
}

func TestHTTPFetcher_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"metadata":{"tweetCreatorUsername":"bob"}}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), 5, time.Millisecond, zaptest.NewLogger(t))
	identity, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "bob", identity)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcher_MalformedFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), 5, time.Millisecond, zaptest.NewLogger(t))
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcher_NotFoundFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), 5, time.Millisecond, zaptest.NewLogger(t))
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcher_MissingIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"Coin","metadata":{}}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), 3, time.Millisecond, zaptest.NewLogger(t))
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrNoIdentity)
}
