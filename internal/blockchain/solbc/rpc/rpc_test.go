package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewPool_NoNodes(t *testing.T) {
	_, err := NewPool(nil, Options{}, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrNoRPCNodes)
}

func TestExecute_RotatesNodes(t *testing.T) {
	p, err := NewPool([]string{"http://a", "http://b"}, Options{Attempts: 2, Delay: time.Millisecond}, zaptest.NewLogger(t))
	require.NoError(t, err)

	var seen []*solanarpc.Client
	err = p.Execute(context.Background(), func(_ context.Context, c *solanarpc.Client) error {
		seen = append(seen, c)
		if len(seen) == 1 {
			return errors.New("node a down")
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.NotSame(t, seen[0], seen[1])
}

func TestExecute_Permanent(t *testing.T) {
	p, err := NewPool([]string{"http://a", "http://b"}, Options{Attempts: 3}, zaptest.NewLogger(t))
	require.NoError(t, err)

	notFound := errors.New("not found")
	calls := 0
	err = p.Execute(context.Background(), func(context.Context, *solanarpc.Client) error {
		calls++
		return &Permanent{Err: notFound}
	})
	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, 1, calls)
}

func TestExecute_ExhaustsAttempts(t *testing.T) {
	p, err := NewPool([]string{"http://a"}, Options{Attempts: 3, Delay: time.Millisecond}, zaptest.NewLogger(t))
	require.NoError(t, err)

	calls := 0
	boom := errors.New("boom")
	err = p.Execute(context.Background(), func(context.Context, *solanarpc.Client) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}
