package solbc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/launch-sniper/internal/domain"
)

// logsNode mimics the logsSubscribe surface of an RPC node. Every connection
// gets one notification whose slot equals the connection number. The first
// connection is dropped once the test signals on drop; later ones stay open
// until the client goes away.
type logsNode struct {
	t       *testing.T
	sigs    []solana.Signature
	drop    chan struct{}
	conns   atomic.Int32
	upgrade websocket.Upgrader
}

func (n *logsNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrade.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	num := int(n.conns.Add(1))

	var req struct {
		ID     uint64 `json:"id"`
		Method string `json:"method"`
	}
	if err := conn.ReadJSON(&req); err != nil {
		return
	}
	assert.Equal(n.t, "logsSubscribe", req.Method)

	const subID = 7
	ack := fmt.Sprintf(`{"jsonrpc":"2.0","result":%d,"id":%d}`, subID, req.ID)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(ack)); err != nil {
		return
	}

	txErr := "null"
	if num > 1 {
		txErr = `{"InstructionError":[0,"Custom"]}`
	}
	note := fmt.Sprintf(`{"jsonrpc":"2.0","method":"logsNotification","params":{"result":{"context":{"slot":%d},"value":{"signature":%q,"err":%s,"logs":["Program log: Instruction: InitializeVirtualPoolWithSplToken"]}},"subscription":%d}}`,
		num, n.sigs[num-1].String(), txErr, subID)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(note)); err != nil {
		return
	}

	if num == 1 {
		<-n.drop
		return
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func nextEvent(t *testing.T, events <-chan domain.LogEvent) domain.LogEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "log stream closed early")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no log event received")
	}
	return domain.LogEvent{}
}

func TestSubscribeLogs_DeliversReconnectsAndCloses(t *testing.T) {
	node := &logsNode{
		t:    t,
		sigs: []solana.Signature{{1, 2, 3}, {4, 5, 6}},
		drop: make(chan struct{}),
	}
	srv := httptest.NewServer(node)
	defer srv.Close()

	client := NewClient(nil, "ws"+strings.TrimPrefix(srv.URL, "http"), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := client.SubscribeLogs(ctx, solana.NewWallet().PublicKey(), 4)
	require.NoError(t, err)

	first := nextEvent(t, events)
	assert.Equal(t, node.sigs[0], first.Signature)
	assert.Equal(t, uint64(1), first.Slot)
	assert.False(t, first.Failed)
	assert.Equal(t, []string{"Program log: Instruction: InitializeVirtualPoolWithSplToken"}, first.Logs)
	assert.False(t, first.Received.IsZero())

	close(node.drop)

	second := nextEvent(t, events)
	assert.Equal(t, node.sigs[1], second.Signature)
	assert.Equal(t, uint64(2), second.Slot)
	assert.True(t, second.Failed)
	assert.Equal(t, int32(2), node.conns.Load())

	// the second socket is held open, so closing relies on cancellation
	// reaching the pending read
	cancel()
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("log stream still open after cancel")
	}
}

func TestSubscribeLogs_NoWebsocket(t *testing.T) {
	client := NewClient(nil, "", zaptest.NewLogger(t))
	_, err := client.SubscribeLogs(context.Background(), solana.NewWallet().PublicKey(), 1)
	assert.ErrorIs(t, err, ErrNoWebsocket)
}
