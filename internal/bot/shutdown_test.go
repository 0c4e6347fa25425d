package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestShutdownHandler_ReverseOrder(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), time.Second)

	var order []string
	sh.AddFunc("server", func() error { order = append(order, "server"); return nil })
	sh.AddFunc("scheduler", func() error { order = append(order, "scheduler"); return nil })

	require.NoError(t, sh.Shutdown(context.Background()))
	assert.Equal(t, []string{"scheduler", "server"}, order)

	// services are closed only once
	require.NoError(t, sh.Shutdown(context.Background()))
	assert.Len(t, order, 2)
}

func TestShutdownHandler_CollectsErrors(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), 50*time.Millisecond)

	boom := errors.New("boom")
	block := make(chan struct{})
	defer close(block)

	sh.AddFunc("stuck", func() error { <-block; return nil })
	sh.AddFunc("failing", func() error { return boom })

	err := sh.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "stuck: shutdown timeout")
}
