package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

func sample() domain.Notification {
	return domain.Notification{
		ChannelID: 77,
		Message:   "✅ : $COIN for 0.5 SOL",
		Event:     domain.NotifyBuy,
		Mint:      "Mint111",
		Amount:    0.5,
	}
}

func TestHTTPNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewHTTPNotifier(srv.URL, time.Second)
	require.NoError(t, n.Notify(context.Background(), sample()))

	assert.Equal(t, float64(77), got["user_id"])
	assert.Equal(t, "Buy", got["event"])
	assert.Equal(t, "Mint111", got["mint"])
	assert.Equal(t, 0.5, got["amount"])
}

func TestHTTPNotifier_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewHTTPNotifier(srv.URL, time.Second).Notify(context.Background(), sample())
	assert.ErrorContains(t, err, "unexpected status 400")
}

func TestTelegram(t *testing.T) {
	var sent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"sniper","username":"sniper_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			sent = r.PostForm.Get("text")
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":5,"date":0,"chat":{"id":77,"type":"private"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	tg, err := NewTelegramWithEndpoint("token", srv.URL+"/bot%s/%s", time.Second)
	require.NoError(t, err)
	require.NoError(t, tg.Notify(context.Background(), sample()))
	assert.Equal(t, sample().Message, sent)
}

func TestTelegram_HungSendHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"sniper","username":"sniper_bot"}}`))
			return
		}
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	defer close(release)

	tg, err := NewTelegramWithEndpoint("token", srv.URL+"/bot%s/%s", 10*time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = tg.Notify(ctx, sample())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTelegram_RequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	start := time.Now()
	tg, err := NewTelegramWithEndpoint("token", srv.URL+"/bot%s/%s", 100*time.Millisecond)
	assert.Nil(t, tg)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

type failing struct{ err error }

func (f failing) Notify(context.Context, domain.Notification) error { return f.err }

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	m := Multi{NewLog(zaptest.NewLogger(t)), failing{boom}}
	assert.ErrorIs(t, m.Notify(context.Background(), sample()), boom)
	assert.NoError(t, Multi{NewLog(zaptest.NewLogger(t))}.Notify(context.Background(), sample()))
}
